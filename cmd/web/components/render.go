package components

import (
	"context"
	"strings"

	"github.com/sketchplanations/sketchweb/cmd/web/components/types"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/session"
)

// SearchFailedMessage is shown when the repository could not be searched.
const SearchFailedMessage = "We could not reach the sketch library. Please try again in a moment."

// StateData turns a live search state into page data for the results area.
func StateData(st session.State, p search.Params) types.PageData {
	data := types.PageData{
		Query:       st.Query,
		Images:      st.Results,
		HasSearched: st.HasSearched,
		Gallery: types.Geometry{
			ContainerWidth:  p.ContainerWidth,
			TargetRowHeight: p.TargetRowHeight,
			Margin:          p.Margin,
		},
	}
	if st.Err != nil {
		data.Error = SearchFailedMessage
	}
	if len(st.Results) > 0 {
		data.Rows = p.Layout(st.Results)
	}
	return data
}

// RenderResults renders the results area for st. Live sessions send it to the
// page on every state change.
func RenderResults(ctx context.Context, st session.State, p search.Params) (string, error) {
	var buf strings.Builder
	if err := Results(StateData(st, p)).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
