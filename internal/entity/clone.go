package entity

import "maps"

// Clone returns a spec sharing no mutable state with s.
func (s JobSpec) Clone() JobSpec {
	out := s
	out.Source.Headers = maps.Clone(s.Source.Headers)
	if s.Source.Sources != nil {
		out.Source.Sources = append([]string(nil), s.Source.Sources...)
	}
	out.Extraction.Fields = cloneFields(s.Extraction.Fields)
	if s.Pagination != nil {
		p := *s.Pagination
		out.Pagination = &p
	}
	return out
}

func cloneFields(fields []FieldSelector) []FieldSelector {
	if fields == nil {
		return nil
	}
	out := make([]FieldSelector, len(fields))
	for i, f := range fields {
		out[i] = f
		out[i].Fields = cloneFields(f.Fields)
	}
	return out
}

func (r JobRun) Clone() JobRun {
	out := r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

func (r Result) Clone() Result {
	out := r
	if r.Data != nil {
		out.Data = make([]Record, len(r.Data))
		for i := range r.Data {
			out.Data[i] = r.Data[i].Clone()
		}
	}
	return out
}
