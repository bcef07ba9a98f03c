package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) (Params, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p, err := paramsFor(t, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p, err := paramsFor(t, "/?limit=500&offset=10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != MaxLimit || p.Offset != 10 {
		t.Errorf("expected %d/10, got %d/%d", MaxLimit, p.Limit, p.Offset)
	}
}

func TestFromContext_RejectsMalformed(t *testing.T) {
	for _, target := range []string{"/?limit=abc", "/?limit=0", "/?offset=-5", "/?offset=x"} {
		_, err := paramsFor(t, target)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", target, err)
		}
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 10, Params{Limit: 2})
	if page.Total != 10 || !page.HasMore {
		t.Errorf("unexpected page %+v", page)
	}
	last := NewPage([]string{"f"}, 6, Params{Limit: 5, Offset: 5})
	if last.HasMore {
		t.Error("expected last page to have no more")
	}
	if empty := NewPage[string](nil, 0, Params{Limit: 5}); empty.Items == nil {
		t.Error("expected empty slice, not nil")
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	cases := []struct {
		limit, offset int
		want          []int
	}{
		{2, 0, []int{1, 2}},
		{2, 4, []int{5}},
		{10, 0, []int{1, 2, 3, 4, 5}},
		{2, 9, []int{}},
	}
	for _, tc := range cases {
		got, total := Slice(items, tc.limit, tc.offset)
		if total != 5 {
			t.Errorf("expected total 5, got %d", total)
		}
		if len(got) != len(tc.want) {
			t.Errorf("Slice(%d,%d) = %v, want %v", tc.limit, tc.offset, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("Slice(%d,%d) = %v, want %v", tc.limit, tc.offset, got, tc.want)
			}
		}
	}
}
