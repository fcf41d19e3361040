package tokenizer

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/shopscout/searchcore/pkg/config"
)

func newTestTokenizer() *Tokenizer {
	return New(config.DefaultIndexSettings())
}

func TestTokenize(t *testing.T) {
	tok := newTestTokenizer()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercases and splits on punctuation",
			input: "Samsung Galaxy-S24, Ultra!",
			want:  []string{"samsung", "galaxy", "s24", "ultra"},
		},
		{
			name:  "drops short tokens",
			input: "tv 4k go hdmi",
			want:  []string{"hdmi"},
		},
		{
			name:  "drops stop words",
			input: "the phone and the case",
			want:  []string{"phone", "case"},
		},
		{
			name:  "dedupes preserving first occurrence order",
			input: "case phone case phone charger",
			want:  []string{"case", "phone", "charger"},
		},
		{
			name:  "keeps digits",
			input: "iphone 15 pro 256gb",
			want:  []string{"iphone", "pro", "256gb"},
		},
		{
			name:  "cyrillic input",
			input: "Беспроводные наушники",
			want:  []string{"беспроводные", "наушники"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "only separators",
			input: "!!! --- ...",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Tokenize(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	tok := newTestTokenizer()
	input := "Wireless Noise-Cancelling Headphones, wireless edition"
	first := tok.Tokenize(input)
	for i := 0; i < 10; i++ {
		if got := tok.Tokenize(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: Tokenize returned %v, want %v", i, got, first)
		}
	}
}

func TestTokenizeLengthBounds(t *testing.T) {
	tok := New(config.IndexSettings{MinTokenLength: 3, MaxTokenLength: 5})

	got := tok.Tokenize("ab abc abcde abcdef")
	want := []string{"abc", "abcde"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeMemoReturnsCopies(t *testing.T) {
	tok := newTestTokenizer()
	first := tok.Tokenize("gaming laptop stand")
	first[0] = "mutated"

	second := tok.Tokenize("gaming laptop stand")
	if second[0] != "gaming" {
		t.Errorf("mutating a returned slice leaked into the memo: got %v", second)
	}
}

func TestTokenizeMemoBounded(t *testing.T) {
	tok := newTestTokenizer()
	for i := 0; i < memoLimit+10; i++ {
		tok.Tokenize(fmt.Sprintf("query number %d", i))
	}
	if n := tok.MemoLen(); n > memoLimit {
		t.Errorf("memo grew to %d entries, limit is %d", n, memoLimit)
	}
}

func TestSynonyms(t *testing.T) {
	tok := newTestTokenizer()

	if got := tok.Synonyms("phone"); len(got) == 0 {
		t.Error("expected synonyms for 'phone'")
	}
	if got := tok.Synonyms("unmapped"); got != nil {
		t.Errorf("Synonyms(unmapped) = %v, want nil", got)
	}
}

func BenchmarkTokenize(b *testing.B) {
	tok := newTestTokenizer()
	input := "Samsung Galaxy S24 Ultra 512GB Titanium Gray smartphone with S Pen"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tok.Tokenize(input)
	}
}

func BenchmarkTokenizeCold(b *testing.B) {
	tok := newTestTokenizer()
	inputs := make([]string, 1000)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("product title number %d with some description", i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tok.Tokenize(inputs[i%len(inputs)])
	}
}
