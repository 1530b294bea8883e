package app

import (
	"context"
	"time"

	"github.com/cuongbtq/mediaflow/internal/llm"
	"github.com/cuongbtq/mediaflow/internal/pipeline"
)

const checkTimeout = 20 * time.Second

type dependencyChecker interface {
	CheckDependencies(ctx context.Context) (map[string]bool, error)
}

type modelChecker interface {
	HasModel(ctx context.Context, endpoint, model string) (bool, error)
}

// SystemStatus reports whether the external tooling a job needs is usable.
type SystemStatus struct {
	Dependencies     map[string]bool `json:"dependencies"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	ModelAvailable   bool            `json:"modelAvailable"`
	APIKeyConfigured bool            `json:"apiKeyConfigured"`
	Errors           []string        `json:"errors,omitempty"`
}

// Checker probes the helper process and the default language model.
type Checker struct {
	bridge   dependencyChecker
	models   modelChecker
	provider string
	model    string
	endpoint string
	keys     pipeline.KeyStore
}

func (c *Checker) Check(ctx context.Context) SystemStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st := SystemStatus{Provider: c.provider, Model: llm.NormalizeModel(c.provider, c.model)}

	deps, err := c.bridge.CheckDependencies(ctx)
	if err != nil {
		st.Errors = append(st.Errors, "dependencies: "+err.Error())
	}
	st.Dependencies = deps

	if !llm.RequiresAPIKey(c.provider) {
		if st.Model == "" {
			st.Errors = append(st.Errors, "no default model configured")
			return st
		}
		ok, err := c.models.HasModel(ctx, c.endpoint, st.Model)
		if err != nil {
			st.Errors = append(st.Errors, "model: "+err.Error())
		}
		st.ModelAvailable = ok
		return st
	}

	st.APIKeyConfigured = c.keys.APIKey(c.provider) != ""
	st.ModelAvailable = st.APIKeyConfigured
	if !st.APIKeyConfigured {
		st.Errors = append(st.Errors, "no API key configured for "+c.provider)
	}
	return st
}

// Healthy reports whether no probe failed.
func (s SystemStatus) Healthy() bool {
	return len(s.Errors) == 0 && s.ModelAvailable
}
