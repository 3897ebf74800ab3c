package retrieval

import (
	"fmt"
	"strings"

	"github.com/siherrmann/syllabus/model"
)

// ContextSeparator separates the numbered blocks of a rendered context.
const ContextSeparator = "\n\n---\n\n"

// FormatContext renders one numbered block per result:
//
//	[1] Science — Class 7, Chapter: Heat | Score: 0.87
//	<chunk text>
func FormatContext(results []*model.RetrievalResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		header := fmt.Sprintf(
			"[%d] %s — Class %d, Chapter: %s | Score: %.2f",
			i+1,
			r.Metadata.Subject,
			r.Metadata.Grade,
			r.Metadata.ChapterTitle,
			r.Score,
		)
		blocks = append(blocks, header+"\n"+r.Text)
	}
	return strings.Join(blocks, ContextSeparator)
}

// prefix returns the first n code points of text.
func prefix(text string, n int) string {
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
