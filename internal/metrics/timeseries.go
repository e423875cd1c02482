package metrics

import (
	"context"
	"sort"
	"strings"

	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TimeSeriesBuilder converts buffered samples into remote_write series.
type TimeSeriesBuilder func(ctx context.Context, samples []Sample) ([]prompb.TimeSeries, error)

// BuildTimeSeries groups samples by metric name and label set. Extra labels
// are added to every series. Series are ordered by their label signature and
// samples within a series by time.
func BuildTimeSeries(extra ...Label) TimeSeriesBuilder {
	return func(ctx context.Context, samples []Sample) ([]prompb.TimeSeries, error) {
		_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildTimeSeries")
		defer span.End()

		series := make(map[string]*prompb.TimeSeries)
		for _, s := range samples {
			labels := seriesLabels(s, extra)
			key := signature(labels)
			ts, ok := series[key]
			if !ok {
				ts = &prompb.TimeSeries{Labels: labels}
				series[key] = ts
			}
			ts.Samples = append(ts.Samples, prompb.Sample{
				Value:     s.Value,
				Timestamp: s.Time.UnixMilli(),
			})
		}

		keys := make([]string, 0, len(series))
		for k := range series {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make([]prompb.TimeSeries, 0, len(keys))
		for _, k := range keys {
			ts := series[k]
			sort.SliceStable(ts.Samples, func(i, j int) bool {
				return ts.Samples[i].Timestamp < ts.Samples[j].Timestamp
			})
			out = append(out, *ts)
		}

		span.SetAttributes(
			attribute.Int("metrics.samples", len(samples)),
			attribute.Int("metrics.time_series_count", len(out)),
		)
		return out, nil
	}
}

// seriesLabels returns __name__ followed by the remaining labels sorted by name.
func seriesLabels(s Sample, extra []Label) []prompb.Label {
	rest := make([]prompb.Label, 0, len(s.Labels)+len(extra))
	for _, l := range extra {
		rest = append(rest, prompb.Label{Name: l.Name, Value: l.Value})
	}
	for _, l := range s.Labels {
		rest = append(rest, prompb.Label{Name: l.Name, Value: l.Value})
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })
	return append([]prompb.Label{{Name: "__name__", Value: s.Name}}, rest...)
}

func signature(labels []prompb.Label) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(l.Value)
		b.WriteByte(0)
	}
	return b.String()
}
