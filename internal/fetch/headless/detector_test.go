package headless

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldPromoteEmptyBody(t *testing.T) {
	t.Parallel()
	h := NewHeuristic(0)
	assert.True(t, h.ShouldPromote(200, nil))
}

func TestShouldPromoteSPAMarker(t *testing.T) {
	t.Parallel()
	h := NewHeuristic(0)
	body := []byte(`<html><body><div id="root"></div></body></html>`)
	assert.True(t, h.ShouldPromote(200, body))
}

func TestShouldPromoteScriptHeavyShortBody(t *testing.T) {
	t.Parallel()
	h := NewHeuristic(0)
	body := []byte(`<html><script>` + strings.Repeat("window.x=1;", 50) + `</script><p>hi</p></html>`)
	assert.True(t, h.ShouldPromote(200, body))
}

func TestShouldNotPromoteStaticPage(t *testing.T) {
	t.Parallel()
	h := NewHeuristic(0)
	body := []byte(`<html><body><h1>Vanguard Rod</h1><table><tr><td>VG-70</td></tr></table>` +
		strings.Repeat("<p>spec text</p>", 20) + `</body></html>`)
	assert.False(t, h.ShouldPromote(200, body))
}

func TestShouldNotPromoteNon200(t *testing.T) {
	t.Parallel()
	h := NewHeuristic(0)
	assert.False(t, h.ShouldPromote(404, nil))
}

func TestNoopRendererErrors(t *testing.T) {
	t.Parallel()
	_, err := NewNoop().Render(t.Context(), "https://supplier.example.com/p/1")
	assert.Error(t, err)
}
