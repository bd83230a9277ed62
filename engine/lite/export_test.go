package lite

var BuildPDF = buildPDF

const FirstPage, SecondPage = firstPage, secondPage
