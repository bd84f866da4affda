package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pavecheck/choices"
	"pavecheck/frame"
	"pavecheck/ml"
	"pavecheck/monitoring"
)

// Handler owns the session store and the optional server-wide default
// pipeline that sessions fall back to before their first upload.
type Handler struct {
	log      *zap.SugaredLogger
	sessions *SessionStore
	fallback atomic.Pointer[ml.Pipeline]
}

func NewHandler(log *zap.SugaredLogger, sessions *SessionStore) *Handler {
	return &Handler{log: log, sessions: sessions}
}

// SetDefaultPipeline installs the artifact used by sessions that have not
// uploaded their own. Safe to call concurrently (hot reload).
func (h *Handler) SetDefaultPipeline(p *ml.Pipeline) {
	h.fallback.Store(p)
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /upload/model", h.handleModelUpload)
	mux.HandleFunc("POST /upload/dataset", h.handleDatasetUpload)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/schema", h.handleSchema)
	mux.HandleFunc("POST /api/predict", h.handleAPIPredict)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) pipelineFor(sess *Session) *ml.Pipeline {
	if p := sess.Pipeline(); p != nil {
		return p
	}
	return h.fallback.Load()
}

// ResultRow is one rendered prediction. Echoed input fields are included
// only when the schema declares them.
type ResultRow struct {
	Aircraft    string   `json:"aircraft,omitempty"`
	GrossWeight string   `json:"gross_wt_lbs,omitempty"`
	Saturation  string   `json:"degree_of_saturation,omitempty"`
	Soil        string   `json:"soil,omitempty"`
	FAACategory string   `json:"faa_category,omitempty"`
	Prediction  string   `json:"prediction"`
	POverloaded *float64 `json:"p_overloaded,omitempty"`
}

type PredictOutput struct {
	Rows        []ResultRow
	HasAircraft bool
	EchoGross   bool
	EchoSat     bool
	EchoSoil    bool
	EchoFAA     bool
	HasProba    bool
	Debug       *frame.Table
}

// runPredict is the per-submission sequence: expand, coerce, reindex, infer.
func (h *Handler) runPredict(p *ml.Pipeline, base frame.Row, aircraft []string) (*PredictOutput, error) {
	start := time.Now()
	defer func() {
		monitoring.PredictDuration.Observe(time.Since(start).Seconds())
	}()

	num, cat := p.InputColumns()
	hasAircraft := containsColumn(cat, frame.ColAircraftName)

	rows, err := frame.ExpandAircraft(base, aircraft, hasAircraft)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i] = frame.CoerceNumeric(rows[i])
	}

	schema := make([]string, 0, len(num)+len(cat))
	schema = append(schema, num...)
	schema = append(schema, cat...)
	table := frame.Reindex(rows, schema)

	classes, err := p.Predict(table)
	if err != nil {
		return nil, err
	}
	labels := ml.Labels(classes)

	probs, hasProba, err := p.PredictProba(table)
	if err != nil {
		return nil, err
	}

	out := &PredictOutput{
		HasAircraft: hasAircraft,
		EchoGross:   table.HasColumn(frame.ColGrossWeight),
		EchoSat:     table.HasColumn(frame.ColSaturation),
		EchoSoil:    table.HasColumn(frame.ColSoilType),
		EchoFAA:     table.HasColumn(frame.ColFAACategory),
		HasProba:    hasProba,
		Debug:       table,
	}
	for i := 0; i < table.Len(); i++ {
		row := ResultRow{Prediction: labels[i]}
		if hasAircraft {
			row.Aircraft = frame.FormatCell(table.Value(i, frame.ColAircraftName))
		}
		if out.EchoGross {
			row.GrossWeight = frame.FormatCell(table.Value(i, frame.ColGrossWeight))
		}
		if out.EchoSat {
			row.Saturation = frame.FormatCell(table.Value(i, frame.ColSaturation))
		}
		if out.EchoSoil {
			row.Soil = frame.FormatCell(table.Value(i, frame.ColSoilType))
		}
		if out.EchoFAA {
			row.FAACategory = frame.FormatCell(table.Value(i, frame.ColFAACategory))
		}
		if hasProba {
			p3 := math.Round(probs[i]*1000) / 1000
			row.POverloaded = &p3
		}
		out.Rows = append(out.Rows, row)
	}

	monitoring.PredictionsTotal.Add(float64(len(out.Rows)))
	return out, nil
}

// --- form surface ---

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)
	h.render(w, sess, pageState{})
}

func (h *Handler) handleModelUpload(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)

	file, _, err := r.FormFile("model")
	if err != nil {
		h.render(w, sess, pageState{ModelErr: "No artifact file supplied."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.render(w, sess, pageState{ModelErr: fmt.Sprintf("Failed to read upload: %v", err)})
		return
	}

	p, err := ml.Load(bytes.NewReader(data))
	if err != nil {
		monitoring.ModelLoadFailures.Inc()
		h.log.Warnw("artifact load failed", "session", sess.ID, "error", err)
		h.render(w, sess, pageState{ModelErr: fmt.Sprintf("Failed to load model: %v", err)})
		return
	}

	sess.SetPipeline(p)
	monitoring.ModelsLoaded.Inc()
	num, cat := p.InputColumns()
	h.log.Infow("artifact loaded", "session", sess.ID, "numeric", len(num), "categorical", len(cat))
	h.render(w, sess, pageState{ModelMsg: "Model loaded."})
}

func (h *Handler) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)

	file, _, err := r.FormFile("dataset")
	if err != nil {
		h.render(w, sess, pageState{DatasetWarn: "No spreadsheet file supplied."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.render(w, sess, pageState{DatasetWarn: fmt.Sprintf("Could not read spreadsheet: %v", err)})
		return
	}

	c, err := choices.Extract(data)
	if err != nil {
		h.log.Warnw("spreadsheet parse failed", "session", sess.ID, "error", err)
		h.render(w, sess, pageState{DatasetWarn: fmt.Sprintf("Could not read spreadsheet: %v", err)})
		return
	}

	sess.SetChoices(c)
	monitoring.DatasetsLoaded.Inc()
	h.render(w, sess, pageState{DatasetMsg: "Dropdown choices loaded from spreadsheet."})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)
	p := h.pipelineFor(sess)
	if p == nil {
		h.render(w, sess, pageState{Warning: "Upload a pipeline artifact to begin."})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render(w, sess, pageState{ErrorMsg: fmt.Sprintf("Bad form submission: %v", err)})
		return
	}

	num, cat := p.InputColumns()
	base := frame.Row{}
	for _, col := range num {
		base[col] = r.FormValue(col)
	}
	for _, col := range cat {
		if col == frame.ColAircraftName {
			continue
		}
		base[col] = r.FormValue(col)
	}

	aircraft := append([]string(nil), r.Form[frame.ColAircraftName]...)
	aircraft = append(aircraft, frame.SplitCommaList(r.FormValue("aircraft_text"))...)

	out, err := h.runPredict(p, base, aircraft)
	if err != nil {
		if errors.Is(err, frame.ErrNoAircraftSelected) {
			h.render(w, sess, pageState{Warning: "Please select at least one aircraft.", Form: r.Form})
			return
		}
		monitoring.PredictionFailures.Inc()
		h.log.Warnw("prediction failed", "session", sess.ID, "error", err)
		h.render(w, sess, pageState{ErrorMsg: fmt.Sprintf("Prediction failed: %v", err), Form: r.Form})
		return
	}

	h.render(w, sess, pageState{Form: r.Form, Result: out})
}

// --- JSON surface ---

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)
	p := h.pipelineFor(sess)
	if p == nil {
		http.Error(w, `{"error":"no pipeline loaded"}`, http.StatusNotFound)
		return
	}
	num, cat := p.InputColumns()
	if num == nil {
		num = []string{}
	}
	if cat == nil {
		cat = []string{}
	}
	respondJSON(w, map[string][]string{"numeric": num, "categorical": cat})
}

type predictRequest struct {
	Fields   map[string]any `json:"fields"`
	Aircraft []string       `json:"aircraft"`
}

func (h *Handler) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)
	p := h.pipelineFor(sess)
	if p == nil {
		http.Error(w, `{"error":"no pipeline loaded"}`, http.StatusConflict)
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	base := frame.Row{}
	for k, v := range req.Fields {
		base[k] = v
	}

	out, err := h.runPredict(p, base, req.Aircraft)
	if err != nil {
		if errors.Is(err, frame.ErrNoAircraftSelected) {
			http.Error(w, `{"error":"no aircraft selected"}`, http.StatusUnprocessableEntity)
			return
		}
		monitoring.PredictionFailures.Inc()
		h.log.Warnw("prediction failed", "session", sess.ID, "error", err)
		respondError(w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]any{"results": out.Rows})
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
