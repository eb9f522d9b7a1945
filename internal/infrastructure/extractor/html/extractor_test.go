package html

import (
	"context"
	"testing"
)

func TestExtractKeepsVisibleBlocks(t *testing.T) {
	doc := `<html><head><title>x</title><style>p{}</style></head>
<body><h1>Service Agreement</h1><p>1. The provider   shall deliver.</p><script>alert(1)</script>
<ul><li>Fee: 100</li></ul></body></html>`

	text, err := NewExtractor().Extract(context.Background(), "agreement.html", []byte(doc))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "Service Agreement\n1. The provider shall deliver.\nFee: 100"
	if text != want {
		t.Fatalf("unexpected text %q, want %q", text, want)
	}
}
