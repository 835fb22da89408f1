package pipeline

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPService exposes the state of a Daemon over http.
type HTTPService struct {
	daemon *Daemon
	logger *zap.Logger
}

func NewHTTPService(daemon *Daemon) *HTTPService {
	return &HTTPService{
		daemon: daemon,
		logger: daemon.logger.Named("http_service"),
	}
}

// RegisterHandlers registers the status endpoint at endpoint and a manual
// run trigger at endpoint + "trigger".
func (h *HTTPService) RegisterHandlers(mux *http.ServeMux, endpoint string) {
	mux.HandleFunc(endpoint, h.HandlerStatus)
	mux.HandleFunc(endpoint+"trigger", h.HandlerTrigger)
}

type stepView struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type signalView struct {
	Probe    string `json:"probe"`
	Detected bool   `json:"detected"`
}

type pullRequestView struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

type reportView struct {
	BuildNumber   int64            `json:"build_number"`
	Result        string           `json:"result"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	FeatureBranch string           `json:"feature_branch,omitempty"`
	Signals       []signalView     `json:"signals"`
	Steps         []stepView       `json:"steps"`
	Warnings      []string         `json:"warnings,omitempty"`
	PullRequest   *pullRequestView `json:"pull_request,omitempty"`
}

func toReportView(report *Report) *reportView {
	view := reportView{
		BuildNumber:   report.BuildNumber,
		Result:        string(report.Result),
		StartTime:     report.StartTime,
		EndTime:       report.EndTime,
		FeatureBranch: report.FeatureBranch,
		Warnings:      report.Warnings,
	}

	for _, signal := range report.Signals {
		view.Signals = append(view.Signals, signalView(signal))
	}

	for _, step := range report.Steps {
		sv := stepView{Step: step.Step, Status: string(step.Status)}
		if step.Err != nil {
			sv.Error = step.Err.Error()
		}
		view.Steps = append(view.Steps, sv)
	}

	if report.PullRequest != nil {
		view.PullRequest = &pullRequestView{
			Number: report.PullRequest.Number,
			URL:    report.PullRequest.URL,
		}
	}

	return &view
}

func (h *HTTPService) HandlerStatus(respWr http.ResponseWriter, _ *http.Request) {
	report := h.daemon.LastReport()
	if report == nil {
		http.Error(respWr, "no maintenance run finished yet", http.StatusNotFound)
		return
	}

	respWr.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(respWr).Encode(toReportView(report)); err != nil {
		h.logger.Info("encoding status response failed", zap.Error(err))
	}
}

func (h *HTTPService) HandlerTrigger(respWr http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(respWr, "only POST requests are supported", http.StatusMethodNotAllowed)
		return
	}

	h.daemon.Trigger()
	respWr.WriteHeader(http.StatusAccepted)
}
