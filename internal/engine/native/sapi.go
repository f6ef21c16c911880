package native

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/auraread/speech-service/internal/engine/command"
	"github.com/auraread/speech-service/internal/voice"
)

const (
	sapiEngineName   = "windows_sapi"
	sapiIDPrefix     = "TTS_MS_"
	sapiFieldCount   = 3
	sapiFieldSep     = "|"
	sapiMaxVolume    = 100
	powerShellNoLogo = "-NoProfile"
	powerShellNonInt = "-NonInteractive"
	powerShellCmd    = "-Command"
)

// PowerShell scripts driving System.Speech. The text always arrives on standard input.
const (
	sapiListScript = `Add-Type -AssemblyName System.Speech;` +
		`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;` +
		`foreach ($v in $s.GetInstalledVoices()) { if ($v.Enabled) { $i = $v.VoiceInfo;` +
		` '{0}|{1}|{2}' -f $i.Id, $i.Name, $i.Culture.Name } };` +
		`$s.Dispose()`
	sapiSpeakScript = `Add-Type -AssemblyName System.Speech;` +
		`[Console]::InputEncoding = [System.Text.Encoding]::UTF8;` +
		`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;` +
		`$v = '%s'; if ($v) { $s.SelectVoice($v) };` +
		`$s.Rate = %d; $s.Volume = %d;` +
		`$s.SetOutputToWaveFile('%s');` +
		`$s.Speak([Console]::In.ReadToEnd());` +
		`$s.Dispose()`
)

// sapiDriver speaks through the Windows System.Speech synthesizer in a PowerShell child process.
type sapiDriver struct {
	runner     command.Runner
	powerShell string
	rate       int
}

func (d *sapiDriver) name() string { return sapiEngineName }

func (d *sapiDriver) listVoices(ctx context.Context) ([]installedVoice, error) {
	output, err := d.runner.Run(ctx, "", d.powerShell, powerShellNoLogo, powerShellNonInt, powerShellCmd, sapiListScript)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate SAPI voices: %w", err)
	}

	return parseSAPIVoices(string(output)), nil
}

func (d *sapiDriver) synthesize(ctx context.Context, text, selector, outPath string) error {
	script := fmt.Sprintf(sapiSpeakScript, quotePowerShell(selector), d.rate, sapiMaxVolume, quotePowerShell(outPath))

	_, err := d.runner.Run(ctx, text, d.powerShell, powerShellNoLogo, powerShellNonInt, powerShellCmd, script)
	if err != nil {
		return fmt.Errorf("SAPI speech generation failed: %w", err)
	}

	return nil
}

// parseSAPIVoices reads "id|name|culture" lines. Malformed lines are skipped.
func parseSAPIVoices(output string) []installedVoice {
	var voices []installedVoice

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimSpace(line), sapiFieldSep)
		if len(fields) != sapiFieldCount || fields[0] == "" {
			continue
		}

		id, name, culture := fields[0], strings.TrimSpace(fields[1]), fields[2]

		descriptor := ParseSAPIVoiceID(id)
		if name != "" {
			descriptor.DisplayName = name
		}

		if descriptor.LanguageCode == voice.UnknownLanguage && culture != "" {
			descriptor.LanguageCode = voice.NormalizeLanguage(culture)
		}

		voices = append(voices, installedVoice{descriptor: descriptor, selector: name})
	}

	return voices
}

// ParseSAPIVoiceID derives a descriptor from a SAPI voice token id such as
// "HKEY_LOCAL_MACHINE\...\TTS_MS_EN-US_DAVID_11.0".
//
// The display name is the last path segment without the "TTS_MS_" prefix, underscores
// replaced by spaces, in title case. The language is the first '_' separated part
// containing a '-', lowercased, or "unknown".
func ParseSAPIVoiceID(id string) voice.Descriptor {
	segment := id
	if index := strings.LastIndex(id, `\`); index >= 0 {
		segment = id[index+1:]
	}

	name := strings.ReplaceAll(strings.ReplaceAll(segment, sapiIDPrefix, ""), "_", " ")

	language := voice.UnknownLanguage

	for _, part := range strings.Split(segment, "_") {
		if strings.Contains(part, "-") {
			language = strings.ToLower(part)

			break
		}
	}

	return voice.Descriptor{ID: id, DisplayName: titleCase(name), LanguageCode: language}
}

// titleCase upper-cases every letter that follows a non-letter and lower-cases the rest.
func titleCase(s string) string {
	var builder strings.Builder

	builder.Grow(len(s))

	previousLetter := false

	for _, r := range s {
		if unicode.IsLetter(r) {
			if previousLetter {
				builder.WriteRune(unicode.ToLower(r))
			} else {
				builder.WriteRune(unicode.ToUpper(r))
			}

			previousLetter = true

			continue
		}

		builder.WriteRune(r)

		previousLetter = false
	}

	return builder.String()
}

// quotePowerShell escapes a value for a single-quoted PowerShell string.
func quotePowerShell(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
