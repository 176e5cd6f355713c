package usecases

import (
	"net/http"
	"net/url"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
)

// forestLossDefaultPeriod covers the full Hansen loss record.
const forestLossDefaultPeriod = "2001-2022"

const forestLossThreshold = "30"

// analyticsDataset is a /v2/<name>/<geostore> call returning data.attributes.
func analyticsDataset(name string) Dataset {
	return Dataset{
		Name:   name,
		Family: ports.FamilyAnalytics,
		Request: func(g domain.Geostore, dr domain.DateRange) ports.UpstreamRequest {
			q := url.Values{}
			if dr.Start != "" {
				q.Set("start-date", dr.Start)
			}
			if dr.End != "" {
				q.Set("end-date", dr.End)
			}
			return ports.UpstreamRequest{
				Method: http.MethodGet,
				Path:   "/v2/" + name + "/" + url.PathEscape(g.ID),
				Query:  q,
			}
		},
		Extract: AttributesOf,
	}
}

// AnalyzeDatasets are the four analytics datasets of a full analysis.
func AnalyzeDatasets() []Dataset {
	return []Dataset{
		analyticsDataset("forest"),
		analyticsDataset("alerts"),
		analyticsDataset("biodiversity"),
		analyticsDataset("climate"),
	}
}

// ForestLossDatasets is the tree cover loss query.
func ForestLossDatasets() []Dataset {
	return []Dataset{{
		Name:   "umd_tree_cover_loss",
		Family: ports.FamilyData,
		Request: func(g domain.Geostore, dr domain.DateRange) ports.UpstreamRequest {
			period := dr.Period()
			if period == "" {
				period = forestLossDefaultPeriod
			}
			return ports.UpstreamRequest{
				Method: http.MethodGet,
				Path:   "/dataset/umd_tree_cover_loss/area",
				Query: url.Values{
					"geostore":  {g.ID},
					"period":    {period},
					"threshold": {forestLossThreshold},
				},
			}
		},
		Extract: DataOf,
	}}
}

func alertDataset(name, path string) Dataset {
	return Dataset{
		Name:   name,
		Family: ports.FamilyData,
		Request: func(g domain.Geostore, dr domain.DateRange) ports.UpstreamRequest {
			q := url.Values{"geostore": {g.ID}}
			if p := dr.Period(); p != "" {
				q.Set("period", p)
			}
			return ports.UpstreamRequest{Method: http.MethodGet, Path: path, Query: q}
		},
		Extract: DataOf,
	}
}

// AlertDatasets are the deforestation and fire alert queries.
func AlertDatasets() []Dataset {
	return []Dataset{
		alertDataset("deforestation", "/dataset/glad-alerts/area"),
		alertDataset("fire", "/dataset/fire-alerts/area"),
	}
}
