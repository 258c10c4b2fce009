package handler

import (
	"html/template"
	"io"

	"mvmarket-view-onchain/model"
)

var pageTemplate = template.Must(template.New("market").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>NFT Marketplace</title>
<style>
body { font-family: sans-serif; margin: 0; }
.container { max-width: 1600px; margin: 0 auto; padding: 1rem; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(280px, 1fr)); gap: 1rem; }
.card { border: 1px solid #ddd; border-radius: 12px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,.2); }
.card img { width: 100%; }
.card .body { padding: 1rem; }
.card .name { height: 64px; font-size: 1.5rem; font-weight: bold; }
.card .description { height: 72px; overflow: hidden; }
.card .footer { padding: 1rem; background: #000; color: #fff; }
.card .price { font-weight: bold; margin-bottom: 1rem; }
.card button { width: 100%; background: #8b5cf6; color: #fff; font-weight: bold; padding: .75rem 3rem; border: 0; border-radius: 4px; }
.error { background: #fee2e2; color: #991b1b; padding: 1rem; margin-bottom: 1rem; }
</style>
</head>
<body>
<div class="container">
{{- if .Error}}
<div class="error">Failed to load listings: {{.Error}}</div>
{{- end}}
{{- if eq .State "not-loaded"}}
<p>Loading…</p>
{{- else if .Listings}}
<div class="grid">
{{- range .Listings}}
<div class="card" data-token-id="{{.TokenId}}">
<img src="{{.Image}}" alt="{{.Name}}">
<div class="body">
<p class="name">{{.Name}}</p>
<div class="description"><p>{{.Description}}</p></div>
</div>
<div class="footer">
<p class="price">{{.Price}} ETH</p>
{{- if $.BuyEnabled}}
<form method="post" action="/buy/{{.TokenId}}"><input type="hidden" name="csrf_token" value="{{$.CSRFToken}}"><button type="submit">Buy</button></form>
{{- end}}
</div>
</div>
{{- end}}
</div>
{{- else if eq .State "loaded"}}
<h1 class="empty">{{.EmptyMessage}}</h1>
{{- end}}
</div>
</body>
</html>
`))

// PageOptions は購入ボタンの表示に関わる設定
type PageOptions struct {
	BuyEnabled bool
	CSRFToken  string
}

type pageData struct {
	model.MarketView
	PageOptions
	EmptyMessage string
}

// RenderPage は一覧画面の状態をカードのグリッドとして書き出す。
// 空表示の文言は読み込み済みで0件のときだけ出す
func RenderPage(w io.Writer, view model.MarketView, opts PageOptions) error {
	return pageTemplate.Execute(w, pageData{MarketView: view, PageOptions: opts, EmptyMessage: model.EmptyMarketMessage})
}
