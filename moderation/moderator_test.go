package moderation

import (
	"log/slog"
	"rendezvous/errors"
	"testing"
	"testing/fstest"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Multiple occurrences",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name:     "Leet speak and internal punctuation",
			input:    "Look at B.4.d.g.€r !",
			expected: "Look at ********** !",
			words:    []string{"badger"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "Accents are kept around a match",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "I love badger!",
			expected: "I love ******!",
			words:    []string{"badger"},
		},
		{
			name:     "Nothing to censor",
			input:    "Rendezvous is amazing",
			expected: "Rendezvous is amazing",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.censor(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
			req.Equal(tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestModerator_Noise_Only_Words_Are_Ignored(t *testing.T) {
	req := require.New(t)

	// Given real noise and not leet speak
	mod, err := NewModerator([]string{"...", ",,,", "", "badger"}, replacementChar, slog.Default())
	req.NoError(err)

	// Then the sentence is censored
	req.Equal("The ****** is safe", mod.Censor("The badger is safe"))
	// Then real noise is left alone
	req.Equal("Hello ...", mod.Censor("Hello ..."))
}

func TestLoad_Merges_Languages(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"words/en.txt":   {Data: []byte("# comment\nbadger\r\nsnake\n\n")},
		"words/fr.txt":   {Data: []byte("blaireau\nbadger\n")},
		"words/notes.md": {Data: []byte("ignored")},
	}

	dictionary, err := Load(fsys, "words")

	req.NoError(err)
	req.ElementsMatch([]string{"badger", "snake", "blaireau"}, dictionary.Words)
	req.ElementsMatch([]string{"en", "fr"}, dictionary.Languages)
}

func TestLoad_Empty_Lists(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"words/en.txt": {Data: []byte("\n# nothing\n")}}

	_, err := Load(fsys, "words")

	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestLoadDefault(t *testing.T) {
	req := require.New(t)

	dictionary, err := LoadDefault()

	req.NoError(err)
	req.NotEmpty(dictionary.Words)
	mod, err := NewModerator(dictionary.Words, replacementChar, slog.Default())
	req.NoError(err)
	req.Equal("you *****", mod.Censor("you moron"))
}
