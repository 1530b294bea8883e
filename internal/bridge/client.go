// Package bridge drives the speech/analysis helper process over its NDJSON protocol.
//
// One JSON request is written to stdin. The process answers with one JSON object
// per stdout line, typed "progress", "error" or "result". A call succeeds only when
// the process exits 0 after sending a result with non-null data.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/cuongbtq/mediaflow/internal/command"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/srt"
)

const toolName = "analysis bridge"

// Commands understood by the helper.
const (
	CommandTranscribe        = "transcribe"
	CommandAnalyze           = "analyze"
	CommandCheckModel        = "check_model"
	CommandCheckDependencies = "check_dependencies"
)

// Source tells where a progress reading came from.
type Source int

const (
	// SourceProtocol readings come from "progress" messages on stdout.
	SourceProtocol Source = iota
	// SourceEngine readings come from the engine's progress bar on stderr.
	SourceEngine
)

// Progress is one reading reported during a call.
type Progress struct {
	Source  Source
	Phase   string
	Percent float64
	Message string
}

// Request is the stdin payload. Unused fields are omitted.
type Request struct {
	Command        string `json:"command"`
	AudioPath      string `json:"audio_path,omitempty"`
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"`
	OllamaEndpoint string `json:"ollama_endpoint,omitempty"`
	AIModel        string `json:"ai_model,omitempty"`

	// analyze only
	Provider           string        `json:"provider,omitempty"`
	APIKey             string        `json:"api_key,omitempty"`
	TranscriptText     string        `json:"transcript_text,omitempty"`
	Segments           []srt.Segment `json:"segments,omitempty"`
	OutputFile         string        `json:"output_file,omitempty"`
	CustomInstructions string        `json:"custom_instructions,omitempty"`
	Title              string        `json:"title,omitempty"`
}

type message struct {
	Type     string          `json:"type"`
	Phase    string          `json:"phase"`
	Progress float64         `json:"progress"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
}

// progressBar matches tqdm style output such as " 45%|████▌     |".
var progressBar = regexp.MustCompile(`(\d{1,3})%\|`)

// Client runs the helper script once per call.
type Client struct {
	python string
	script string
	runner command.Runner
	logger *slog.Logger
}

func NewClient(python, script string, runner command.Runner, logger *slog.Logger) *Client {
	if python == "" {
		python = "python3"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Client{python: python, script: script, runner: runner, logger: logger}
}

// Call sends req and returns the result data.
func (c *Client) Call(ctx context.Context, req Request, onProgress func(Progress)) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode bridge request: %w", err)
	}

	var (
		lastError string
		data      json.RawMessage
	)

	res, runErr := c.runner.Run(ctx, command.Spec{
		Name:  c.python,
		Args:  []string{c.script},
		Stdin: bytes.NewReader(payload),
		OnStdout: func(line string) {
			var msg message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				c.logger.Debug("Ignoring non-protocol output", slog.String("line", line))
				return
			}
			switch msg.Type {
			case "progress":
				if onProgress != nil {
					onProgress(Progress{Source: SourceProtocol, Phase: msg.Phase, Percent: msg.Progress, Message: msg.Message})
				}
			case "error":
				lastError = msg.Message
				c.logger.Warn("Bridge reported error", slog.String("command", req.Command), slog.String("message", msg.Message))
			case "result":
				data = msg.Data
			}
		},
		OnStderr: func(line string) {
			if m := progressBar.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.Atoi(m[1]); err == nil && onProgress != nil {
					onProgress(Progress{Source: SourceEngine, Percent: float64(pct)})
				}
				return
			}
			c.logger.Debug("bridge stderr", slog.String("line", line))
		},
	})

	if runErr != nil || res.ExitCode != 0 {
		msg := lastError
		if msg == "" {
			msg = fmt.Sprintf("process exited with code %d", res.ExitCode)
		}
		return nil, &job.ExternalProcessError{Tool: toolName, ExitCode: res.ExitCode, Message: msg}
	}
	if len(data) == 0 || string(data) == "null" {
		msg := lastError
		if msg == "" {
			msg = "process exited without a result"
		}
		return nil, &job.ExternalProcessError{Tool: toolName, Message: msg}
	}
	return data, nil
}

// Transcription is the transcribe command's result.
type Transcription struct {
	Text     string        `json:"text"`
	SRT      string        `json:"srt"`
	Language string        `json:"language"`
	Segments []srt.Segment `json:"segments"`
}

// Transcribe runs speech-to-text on a WAV file.
func (c *Client) Transcribe(ctx context.Context, audioPath, model, language string, onProgress func(Progress)) (Transcription, error) {
	data, err := c.Call(ctx, Request{Command: CommandTranscribe, AudioPath: audioPath, Model: model, Language: language}, onProgress)
	if err != nil {
		return Transcription{}, err
	}

	var out Transcription
	if err := json.Unmarshal(data, &out); err != nil {
		return Transcription{}, &job.ExternalProcessError{Tool: toolName, Message: "malformed transcription result", Err: err}
	}
	if out.SRT == "" && len(out.Segments) > 0 {
		out.SRT = srt.Format(out.Segments)
	}
	return out, nil
}

// CheckModel asks the helper whether model is available at endpoint.
func (c *Client) CheckModel(ctx context.Context, endpoint, model string) (bool, error) {
	data, err := c.Call(ctx, Request{Command: CommandCheckModel, OllamaEndpoint: endpoint, AIModel: model}, nil)
	if err != nil {
		return false, err
	}

	var out struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return false, &job.ExternalProcessError{Tool: toolName, Message: "malformed check_model result", Err: err}
	}
	return out.Available, nil
}

// CheckDependencies reports which helper-side packages are importable.
func (c *Client) CheckDependencies(ctx context.Context) (map[string]bool, error) {
	data, err := c.Call(ctx, Request{Command: CommandCheckDependencies}, nil)
	if err != nil {
		return nil, err
	}

	out := map[string]bool{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &job.ExternalProcessError{Tool: toolName, Message: "malformed check_dependencies result", Err: err}
	}
	return out, nil
}
