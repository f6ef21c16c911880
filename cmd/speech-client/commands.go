package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/auraread/speech-service/internal/client"
	"github.com/auraread/speech-service/internal/config"
)

// Flag names.
const (
	flagURL           = "url"
	flagToken         = "token"
	flagConfig        = "config"
	flagTimeout       = "timeout"
	flagLogDir        = "log-dir"
	flagDocument      = "document"
	flagLanguage      = "language"
	flagVoice         = "voice"
	flagPreferOffline = "prefer-offline"
	flagOutput        = "output"
	flagText          = "text"
	flagChunks        = "chunks"
	flagWorkers       = "workers"
	flagChunkLimit    = "chunk-limit"
)

const (
	defaultURL        = "http://127.0.0.1:8080"
	defaultDocument   = "default"
	defaultOutputBase = "speech"
	defaultOutputDir  = "speech-output"
	defaultTimeout    = 120 * time.Second
	envAuthToken      = "SPEECH_AUTH_TOKEN"
	logFileName       = "speech-client.log"
	filePermissions   = 0o600
)

var (
	errEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
	errCannotSpecifyBoth  = errors.New("cannot specify both --text and --chunks")
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	url     string
	token   string
	config  string
	timeout time.Duration
	logDir  string
}

// speechOptions are the flags shared by speak and batch.
type speechOptions struct {
	document      string
	language      string
	voice         string
	preferOffline string
}

func (s speechOptions) preference() (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s.preferOffline)) {
	case "":
		return nil, nil
	case "true":
		value := true

		return &value, nil
	case "false":
		value := false

		return &value, nil
	default:
		return nil, fmt.Errorf("invalid --%s value %q: use true or false", flagPreferOffline, s.preferOffline)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "speech-client",
		Short:         "Client for the speech service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.url, flagURL, "", "Speech service base URL (default "+defaultURL+")")
	flags.StringVar(&opts.token, flagToken, "", "API token (defaults to $"+envAuthToken+")")
	flags.StringVar(&opts.config, flagConfig, "", "Service TOML file to take the address and token from")
	flags.DurationVar(&opts.timeout, flagTimeout, defaultTimeout, "HTTP timeout per request")
	flags.StringVar(&opts.logDir, flagLogDir, os.TempDir(), "Directory for the client log")

	cmd.AddCommand(
		newSpeakCommand(opts),
		newVoicesCommand(opts),
		newHealthCommand(opts),
		newBatchCommand(opts),
	)

	return cmd
}

// httpClient resolves the service address and token from flags, the config file and the
// environment, in that order.
func (g *globalOptions) httpClient() (*client.HTTPClient, error) {
	baseURL := g.url
	token := g.token

	if g.config != "" {
		cfg, err := config.LoadFile(g.config)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		if baseURL == "" {
			baseURL = urlFromListenAddress(cfg.Server.ListenAddress)
		}

		if token == "" && len(cfg.Server.AuthTokens) > 0 {
			token = cfg.Server.AuthTokens[0]
		}
	}

	if baseURL == "" {
		baseURL = defaultURL
	}

	if token == "" {
		token = os.Getenv(envAuthToken)
	}

	return client.NewHTTPClient(baseURL, token, g.timeout), nil
}

func (g *globalOptions) logger() (*logger.Logger, error) {
	log, err := logger.New(g.logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return log, nil
}

// urlFromListenAddress turns ":8080" or "0.0.0.0:8080" into a loopback URL.
func urlFromListenAddress(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return defaultURL
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(host, port)
}

func addSpeechFlags(cmd *cobra.Command, opts *speechOptions) {
	cmd.Flags().StringVar(&opts.document, flagDocument, defaultDocument, "Document id the text belongs to")
	cmd.Flags().StringVar(&opts.language, flagLanguage, "", "Language code (defaults to the document language)")
	cmd.Flags().StringVar(&opts.voice, flagVoice, "", "Voice id or name")
	cmd.Flags().StringVar(&opts.preferOffline, flagPreferOffline, "", "Try on-host engines first (true or false)")
}

func newSpeakCommand(global *globalOptions) *cobra.Command {
	var (
		opts   speechOptions
		output string
	)

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize text and save the audio",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient, err := global.httpClient()
			if err != nil {
				return err
			}

			preferOffline, err := opts.preference()
			if err != nil {
				return err
			}

			audio, err := httpClient.GenerateSpeech(cmd.Context(), opts.document, client.SpeechRequest{
				Text:          strings.Join(args, " "),
				Language:      opts.language,
				PreferOffline: preferOffline,
				VoiceName:     opts.voice,
			})
			if err != nil {
				return fmt.Errorf("failed to generate speech: %w", err)
			}

			outputPath := output
			if outputPath == "" {
				outputPath = defaultOutputBase + filepath.Ext(audio.Filename)
			}

			err = os.WriteFile(outputPath, audio.Data, filePermissions)
			if err != nil {
				return fmt.Errorf("failed to write audio file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s (%s, %d bytes)\n", outputPath, audio.ContentType, len(audio.Data))

			return nil
		},
	}

	addSpeechFlags(cmd, &opts)
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", "Output file (defaults to speech.mp3 or speech.wav)")

	return cmd
}

func newVoicesCommand(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices of every engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			httpClient, err := global.httpClient()
			if err != nil {
				return err
			}

			catalog, err := httpClient.ListVoices(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list voices: %w", err)
			}

			out := cmd.OutOrStdout()

			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")

				return encoder.Encode(catalog)
			}

			engines := make([]string, 0, len(catalog))
			for engine := range catalog {
				engines = append(engines, engine)
			}

			sort.Strings(engines)

			for _, engine := range engines {
				fmt.Fprintf(out, "%s (%d voices)\n", engine, len(catalog[engine]))

				for _, descriptor := range catalog[engine] {
					fmt.Fprintf(out, "  %s\t%s\t%s\n", descriptor.ID, descriptor.DisplayName, descriptor.LanguageCode)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON catalog")

	return cmd
}

func newHealthCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check speech service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			httpClient, err := global.httpClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), client.HealthCheckTimeout)
			defer cancel()

			health, err := httpClient.HealthCheck(ctx)
			if err != nil {
				return fmt.Errorf("speech service is not healthy: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Speech service is %s (engines: %s)\n",
				health.Status, strings.Join(health.Engines, ", "))

			return nil
		},
	}
}

func newBatchCommand(global *globalOptions) *cobra.Command {
	var (
		opts       speechOptions
		text       string
		chunks     string
		output     string
		workers    int
		chunkLimit int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Synthesize a JSON chunk file or a long text in parallel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if text == "" && chunks == "" {
				return errEitherTextOrChunks
			}

			if text != "" && chunks != "" {
				return errCannotSpecifyBoth
			}

			httpClient, err := global.httpClient()
			if err != nil {
				return err
			}

			preferOffline, err := opts.preference()
			if err != nil {
				return err
			}

			log, err := global.logger()
			if err != nil {
				return err
			}
			defer log.Close()

			batch := client.NewBatch(httpClient, client.BatchOptions{
				DocumentID:    opts.document,
				Language:      opts.language,
				PreferOffline: preferOffline,
				VoiceName:     opts.voice,
				Workers:       workers,
			}, log)

			var outputs []string

			if chunks != "" {
				log.Info("Processing chunks from: %s", chunks)
				outputs, err = batch.ProcessChunks(cmd.Context(), chunks, output)
			} else {
				outputs, err = batch.ProcessText(cmd.Context(), text, chunkLimit, output)
			}

			written := 0

			for _, path := range outputs {
				if path != "" {
					written++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d audio files in: %s\n", written, output)

			if err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}

			return nil
		},
	}

	addSpeechFlags(cmd, &opts)
	cmd.Flags().StringVar(&text, flagText, "", "Long text to split and synthesize")
	cmd.Flags().StringVar(&chunks, flagChunks, "", "JSON file containing an array of text chunks")
	cmd.Flags().StringVarP(&output, flagOutput, "o", defaultOutputDir, "Output directory")
	cmd.Flags().IntVar(&workers, flagWorkers, client.DefaultWorkers, "Chunks synthesized at once")
	cmd.Flags().IntVar(&chunkLimit, flagChunkLimit, client.DefaultChunkLimit, "Character limit per chunk for --text")

	return cmd
}
