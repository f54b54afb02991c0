package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/shirou/gopsutil/v4/host"
	"gopkg.in/yaml.v3"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHello is a plain text liveness check.
func (s *server) handleHello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello, World!"))
}

// environResponse describes the running server. Secrets in app_config are
// redacted.
type environResponse struct {
	AppConfig map[string]any `json:"app_config"`
	Version   string         `json:"version"`
	GoVersion string         `json:"go_version"`
	Host      *hostInfo      `json:"host,omitempty"`
}

type hostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Uptime          uint64 `json:"uptime_seconds"`
}

// handleEnviron returns the effective configuration and host details.
func (s *server) handleEnviron(w http.ResponseWriter, r *http.Request) {
	appConfig, err := configMap(s.cfg.Redacted())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{err.Error()})

		return
	}

	resp := environResponse{
		AppConfig: appConfig,
		Version:   s.version,
		GoVersion: runtime.Version(),
	}

	info, err := host.InfoWithContext(r.Context())
	if err != nil {
		s.log.WithError(err).Debug("Failed to read host info")
	} else {
		resp.Host = &hostInfo{
			Hostname:        info.Hostname,
			OS:              info.OS,
			Platform:        info.Platform,
			PlatformVersion: info.PlatformVersion,
			KernelVersion:   info.KernelVersion,
			Uptime:          info.Uptime,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// configMap round-trips cfg through YAML so the JSON keys match the config
// file keys.
func configMap(cfg config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return out, nil
}
