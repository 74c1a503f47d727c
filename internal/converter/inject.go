package converter

import (
	"bytes"
	"fmt"
)

const styleLink = `<link rel="stylesheet" href="/style.css">`

// refreshScript polls the modification endpoint and reloads the page when the
// underlying note changed. The poll interval is supplied in milliseconds.
const refreshScript = `<script>
(function() {
  function check() {
    fetch('/api/modified/%s')
      .then(function(resp) { return resp.json(); })
      .then(function(data) {
        if (data.modified) {
          window.location.reload();
        } else {
          setTimeout(check, %d);
        }
      })
      .catch(function() { setTimeout(check, %d); });
  }
  setTimeout(check, %d);
})();
</script>`

// InjectAssets splices the stylesheet link and auto-refresh script into a
// rendered HTML document. The link goes before </head> (or is prepended when
// the document has no head); the script goes before </body> (or is appended).
func InjectAssets(html []byte, relPath string, refreshMS int) []byte {
	link := []byte(styleLink)
	if idx := bytes.Index(html, []byte("</head>")); idx >= 0 {
		html = spliceAt(html, idx, link)
	} else {
		html = append(append(append([]byte{}, link...), '\n'), html...)
	}

	script := fmt.Appendf(nil, refreshScript, relPath, refreshMS, refreshMS, refreshMS)
	if idx := bytes.Index(html, []byte("</body>")); idx >= 0 {
		html = spliceAt(html, idx, script)
	} else {
		html = append(html, script...)
	}
	return html
}

func spliceAt(b []byte, idx int, insert []byte) []byte {
	out := make([]byte, 0, len(b)+len(insert))
	out = append(out, b[:idx]...)
	out = append(out, insert...)
	out = append(out, b[idx:]...)
	return out
}
