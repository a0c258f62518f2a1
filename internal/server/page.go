package server

import "html/template"

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>PDF Assistant</title>
<style>
body { font-family: sans-serif; max-width: 860px; margin: 2em auto; }
.status { padding: 8px; background: #eef; border-radius: 6px; }
.question { text-align: right; margin: 10px 0; padding: 10px; background: #e1ffc7; border-radius: 10px; }
.answer { text-align: left; margin: 10px 0; padding: 10px; background: #f1f0f0; border-radius: 10px; }
.failed { background: #ffe1e1; }
.source { font-size: 0.8em; color: #666; }
</style>
</head>
<body>
<h1>Advanced AI Assistant for Financial/Investment Content</h1>
{{if .Status}}<p class="status">{{.Status}}</p>{{end}}
<form action="/upload" method="post" enctype="multipart/form-data">
  <label>Add a PDF file <input type="file" name="file" accept="application/pdf"></label>
  <button type="submit">Process file</button>
</form>
<form action="/ask" method="post">
  <label>Enter your query: <input type="text" name="query" size="60"></label>
  <button type="submit">Get Answer</button>
</form>
{{range .Entries}}
<div class="question"><strong>Question:</strong> {{.Question}}</div>
<div class="answer{{if .Failed}} failed{{end}}"><strong>Answer:</strong> {{.AnswerHTML}}
{{if .Source}}<div class="source">Source: {{.Source}}</div>{{end}}
</div>
{{end}}
</body>
</html>
`))

type pageEntry struct {
	Question   string
	AnswerHTML template.HTML
	Source     string
	Failed     bool
}

type pageData struct {
	Status  string
	Entries []pageEntry
}
