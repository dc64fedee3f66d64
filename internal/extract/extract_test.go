package extract

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

const samplePage = `<!doctype html>
<html>
<head><title> Prices  Today </title><style>body{color:red}</style></head>
<body>
  <h1>Consumer   prices</h1>
  <script>var tracking = 1;</script>
  <p>Milk and
     bread.</p>
  <a href="/reports/inflation" title="Inflation report">Monthly report</a>
  <a href="https://other.example.org/about">About</a>
  <a href="/reports/inflation#latest">Latest inflation figures</a>
  <a href="#top">Top</a>
  <a href="mailto:team@example.com">Mail</a>
  <a href="javascript:void(0)">Noop</a>
  <a href="">Empty</a>
</body>
</html>`

func htmlResponse(url, body string) crawler.FetchResponse {
	return crawler.FetchResponse{
		URL:        url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func TestExtractTextAndLinks(t *testing.T) {
	t.Parallel()

	ex := New(Config{RelevanceKeywords: []string{"Inflation", "report"}})
	page, err := ex.Extract(htmlResponse("https://example.com/index.html", samplePage))
	require.NoError(t, err)

	require.Equal(t, "Prices Today Consumer prices Milk and bread. Monthly report About Latest inflation figures Top Mail Noop Empty", string(page.Text))
	require.Len(t, page.Links, 2)
	require.Equal(t, "https://example.com/reports/inflation", page.Links[0].URL)
	require.InDelta(t, 1.0, page.Links[0].Relevance, 1e-9)
	require.Equal(t, "https://other.example.org/about", page.Links[1].URL)
	require.InDelta(t, 0.0, page.Links[1].Relevance, 1e-9)
}

func TestExtractHonorsBaseHref(t *testing.T) {
	t.Parallel()

	body := `<html><head><base href="https://cdn.example.com/docs/"></head><body><a href="page">x</a></body></html>`
	page, err := New(Config{}).Extract(htmlResponse("https://example.com/", body))
	require.NoError(t, err)
	require.Len(t, page.Links, 1)
	require.Equal(t, "https://cdn.example.com/docs/page", page.Links[0].URL)
}

func TestExtractDecodesCharset(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1.
	body := []byte("<html><body>caf\xe9</body></html>")
	resp := crawler.FetchResponse{
		URL:     "https://example.com/",
		Headers: http.Header{"Content-Type": {"text/html; charset=iso-8859-1"}},
		Body:    body,
	}
	page, err := New(Config{}).Extract(resp)
	require.NoError(t, err)
	require.Equal(t, "café", string(page.Text))
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	resp := crawler.FetchResponse{
		URL:     "https://example.com/data.txt",
		Headers: http.Header{"Content-Type": {"text/plain"}},
		Body:    []byte("  line one\n\n line two <a href=\"/x\">x</a> "),
	}
	page, err := New(Config{}).Extract(resp)
	require.NoError(t, err)
	require.Equal(t, `line one line two <a href="/x">x</a>`, string(page.Text))
	require.Empty(t, page.Links)
}

func TestExtractEmptyBody(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Extract(crawler.FetchResponse{URL: "https://example.com/"})
	require.ErrorIs(t, err, crawler.ErrEmptyContent)
}

func TestExtractIdenticalMarkupYieldsIdenticalText(t *testing.T) {
	t.Parallel()

	ex := New(Config{})
	a, err := ex.Extract(htmlResponse("https://example.com/", "<p>Hello   world</p>"))
	require.NoError(t, err)
	b, err := ex.Extract(htmlResponse("https://example.com/", "<p>Hello\n world</p><script>x()</script>"))
	require.NoError(t, err)
	require.Equal(t, a.Text, b.Text)
}

func TestRelevance(t *testing.T) {
	t.Parallel()

	ex := New(Config{RelevanceKeywords: []string{"cpi", " ", "prices", "food"}})
	require.InDelta(t, 2.0/3.0, ex.Relevance("CPI and Prices"), 1e-9)
	require.InDelta(t, 0.0, New(Config{}).Relevance("anything"), 1e-9)
}
