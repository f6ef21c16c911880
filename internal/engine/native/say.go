package native

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/auraread/speech-service/internal/engine/command"
	"github.com/auraread/speech-service/internal/voice"
)

const (
	sayEngineName  = "macos_say"
	sayListVoices  = "?"
	sayDataFormat  = "--data-format=LEI16@22050"
	sayFileFormat  = "--file-format=WAVE"
	sayCommentMark = "#"
	sayMinFields   = 2
)

// sayDriver speaks through the macOS say command.
type sayDriver struct {
	runner command.Runner
	say    string
	rate   int
}

func (d *sayDriver) name() string { return sayEngineName }

func (d *sayDriver) listVoices(ctx context.Context) ([]installedVoice, error) {
	output, err := d.runner.Run(ctx, "", d.say, "-v", sayListVoices)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate say voices: %w", err)
	}

	return parseSayVoices(string(output)), nil
}

func (d *sayDriver) synthesize(ctx context.Context, text, selector, outPath string) error {
	args := []string{"-o", outPath, sayFileFormat, sayDataFormat, "-f", "-"}

	if selector != "" {
		args = append(args, "-v", selector)
	}

	if d.rate > 0 {
		args = append(args, "-r", strconv.Itoa(d.rate))
	}

	_, err := d.runner.Run(ctx, text, d.say, args...)
	if err != nil {
		return fmt.Errorf("macOS say speech generation failed: %w", err)
	}

	return nil
}

// parseSayVoices reads "say -v ?" lines of the form "Name   en_US    # sample sentence".
// Voice names may contain spaces; the locale is the last field before the comment.
func parseSayVoices(output string) []installedVoice {
	var voices []installedVoice

	for _, line := range strings.Split(output, "\n") {
		entry, _, _ := strings.Cut(line, sayCommentMark)

		fields := strings.Fields(entry)
		if len(fields) < sayMinFields {
			continue
		}

		locale := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")

		voices = append(voices, installedVoice{
			descriptor: voice.Descriptor{ID: name, DisplayName: name, LanguageCode: voice.NormalizeLanguage(locale)},
			selector:   name,
		})
	}

	return voices
}
