package parser

import (
	"testing"

	"pdf-rag/internal/models"
)

func TestCollect(t *testing.T) {
	tests := []struct {
		name  string
		pages []models.Page
		ocr   string
		want  string
	}{
		{
			name: "pages in order, sentinels dropped",
			pages: []models.Page{
				{PageNum: 1, Text: " First page "},
				{PageNum: 2, Text: models.EmptyPageText(2)},
				{PageNum: 3, Text: models.ErrorPageText(3)},
				{PageNum: 4, Text: "Fourth page"},
			},
			want: "First page\n\nFourth page",
		},
		{
			name:  "ocr appended last",
			pages: []models.Page{{PageNum: 1, Text: "Body"}},
			ocr:   "scanned line\nanother\n",
			want:  "Body\n\nscanned line\nanother",
		},
		{
			name:  "ocr only",
			pages: []models.Page{{PageNum: 1, Text: models.EmptyPageText(1)}},
			ocr:   "from image",
			want:  "from image",
		},
		{
			name:  "bracketed text that is not a sentinel is kept",
			pages: []models.Page{{PageNum: 1, Text: "[1] Reference list"}},
			want:  "[1] Reference list",
		},
		{
			name:  "nothing retained",
			pages: []models.Page{{PageNum: 1, Text: models.EmptyPageText(1)}},
			ocr:   "   ",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Collect(tt.pages, tt.ocr); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
