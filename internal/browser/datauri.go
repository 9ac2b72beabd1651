package browser

import (
	"encoding/base64"
	"strings"
)

const dataHTMLPrefix = "data:text/html;base64,"

// DecodeDataHTML decodes the HTML carried by a base64 data URL. It reports
// false when src is not such a URL.
func DecodeDataHTML(src string) (string, bool, error) {
	if !strings.HasPrefix(src, dataHTMLPrefix) {
		return "", false, nil
	}

	payload := strings.TrimPrefix(src, dataHTMLPrefix)

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", false, err
		}
	}

	return string(decoded), true, nil
}
