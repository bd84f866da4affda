package http

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"pavecheck/frame"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// pageState carries per-request messages and submission echo into a render.
type pageState struct {
	ModelMsg    string
	ModelErr    string
	DatasetMsg  string
	DatasetWarn string
	Warning     string
	ErrorMsg    string
	Form        url.Values
	Result      *PredictOutput
}

type pageData struct {
	HasPipeline bool
	ModelMsg    string
	ModelErr    string
	DatasetMsg  string
	DatasetWarn string
	Warning     string
	ErrorMsg    string
	Fields      []fieldView
	Aircraft    *aircraftView
	Result      *resultView
}

type fieldView struct {
	Name    string
	Kind    string // number | select | text
	Value   string
	Options []string
	Min     string
	Max     string
	Step    string
}

type aircraftView struct {
	Options  []string // empty: free text entry
	Selected map[string]bool
	Text     string
}

type resultView struct {
	Columns      []string
	Rows         [][]string
	DebugColumns []string
	DebugRows    [][]string
}

// numeric widget attributes per known field, matching the trained data's
// typical ranges.
var numericAttrs = map[string]fieldView{
	frame.ColGrossWeight: {Value: "120000", Min: "0", Step: "1000"},
	frame.ColSaturation:  {Value: "80", Min: "0", Max: "100", Step: "1"},
	frame.ColCBR:         {Value: "6", Min: "0", Step: "1"},
}

func (h *Handler) render(w http.ResponseWriter, sess *Session, state pageState) {
	data := pageData{
		ModelMsg:    state.ModelMsg,
		ModelErr:    state.ModelErr,
		DatasetMsg:  state.DatasetMsg,
		DatasetWarn: state.DatasetWarn,
		Warning:     state.Warning,
		ErrorMsg:    state.ErrorMsg,
	}

	p := h.pipelineFor(sess)
	if p != nil {
		data.HasPipeline = true
		num, cat := p.InputColumns()
		choiceTable := sess.Choices()

		for _, col := range num {
			fv := fieldView{Name: col, Kind: "number"}
			if attrs, ok := numericAttrs[col]; ok {
				fv.Value, fv.Min, fv.Max, fv.Step = attrs.Value, attrs.Min, attrs.Max, attrs.Step
			}
			if v := formValue(state.Form, col); v != "" {
				fv.Value = v
			}
			data.Fields = append(data.Fields, fv)
		}

		for _, col := range cat {
			if col == frame.ColAircraftName {
				av := &aircraftView{Selected: map[string]bool{}}
				av.Options = choiceTable[frame.ColAircraftName]
				if state.Form != nil {
					for _, s := range state.Form[frame.ColAircraftName] {
						av.Selected[s] = true
					}
					av.Text = formValue(state.Form, "aircraft_text")
				} else if len(av.Options) > 0 {
					// default: first aircraft preselected
					av.Selected[av.Options[0]] = true
				}
				data.Aircraft = av
				continue
			}
			fv := fieldView{Name: col, Kind: "text", Value: formValue(state.Form, col)}
			if opts, ok := choiceTable[col]; ok && len(opts) > 0 {
				fv.Kind = "select"
				fv.Options = opts
			}
			data.Fields = append(data.Fields, fv)
		}
	}

	if state.Result != nil {
		data.Result = buildResultView(state.Result)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.ExecuteTemplate(w, "index.html", data); err != nil {
		h.log.Errorw("template render failed", "error", err)
	}
}

func buildResultView(out *PredictOutput) *resultView {
	rv := &resultView{}
	if out.HasAircraft {
		rv.Columns = append(rv.Columns, "Aircraft")
	}
	if out.EchoGross {
		rv.Columns = append(rv.Columns, frame.ColGrossWeight)
	}
	if out.EchoSat {
		rv.Columns = append(rv.Columns, frame.ColSaturation)
	}
	if out.EchoSoil {
		rv.Columns = append(rv.Columns, "Soil")
	}
	if out.EchoFAA {
		rv.Columns = append(rv.Columns, "FAA Category")
	}
	rv.Columns = append(rv.Columns, "Prediction")
	if out.HasProba {
		rv.Columns = append(rv.Columns, "P(Overloaded)")
	}

	for _, r := range out.Rows {
		var row []string
		if out.HasAircraft {
			row = append(row, r.Aircraft)
		}
		if out.EchoGross {
			row = append(row, r.GrossWeight)
		}
		if out.EchoSat {
			row = append(row, r.Saturation)
		}
		if out.EchoSoil {
			row = append(row, r.Soil)
		}
		if out.EchoFAA {
			row = append(row, r.FAACategory)
		}
		row = append(row, r.Prediction)
		if out.HasProba && r.POverloaded != nil {
			row = append(row, frame.FormatCell(*r.POverloaded))
		}
		rv.Rows = append(rv.Rows, row)
	}

	if out.Debug != nil {
		rv.DebugColumns = out.Debug.Columns
		for i := 0; i < out.Debug.Len(); i++ {
			var row []string
			for _, c := range out.Debug.Columns {
				row = append(row, frame.FormatCell(out.Debug.Value(i, c)))
			}
			rv.DebugRows = append(rv.DebugRows, row)
		}
	}
	return rv
}

func formValue(form url.Values, key string) string {
	if form == nil {
		return ""
	}
	return form.Get(key)
}
