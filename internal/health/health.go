package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"kaipiao/agent/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type Status struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// CheckAll runs all collaborator checks and returns combined status.
func CheckAll(ctx context.Context, cfg config.Config, catalogProducts int) Status {
	checks := []CheckResult{
		checkSTT(ctx, cfg),
		checkCatalog(catalogProducts),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return Status{OK: allOK, Checks: checks, CheckedAt: time.Now().UTC()}
}

func checkSTT(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "stt"}

	if cfg.STT.URL == "" {
		result.Error = "STT_URL not set"
		result.Latency = time.Since(start)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.STT.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	if cfg.STT.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.STT.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()
	result.Latency = time.Since(start)

	if resp.StatusCode >= 500 {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}
	result.OK = true
	return result
}

func checkCatalog(products int) CheckResult {
	result := CheckResult{Name: "catalog", Latency: 0}
	if products == 0 {
		result.Error = "catalog has no products; price lookups will all miss"
		return result
	}
	result.OK = true
	return result
}
