package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"path"
	"rendezvous/errors"
	"strings"

	"github.com/samber/lo"
)

//go:embed words/*.txt
var defaultWords embed.FS

// Dictionary is the merged content of the word lists, one file per language.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDefault reads the word lists shipped with the server.
func LoadDefault() (Dictionary, error) {
	return Load(defaultWords, "words")
}

// Load reads every .txt file of dir, one word per line, and merges them
// without duplicates. "fr.txt" is reported as language "fr".
func Load(fsys fs.FS, dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Dictionary{}, err
	}

	var languages []string
	var words []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}
		// Scanner handles both \n and \r\n
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
				words = append(words, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return Dictionary{}, err
		}
	}

	words = lo.Uniq(words)
	if len(words) == 0 {
		return Dictionary{}, errors.ErrEmptyWords
	}
	return Dictionary{Words: words, Languages: languages}, nil
}
