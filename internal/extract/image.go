package extract

import (
	"net/http"
	"os"

	"github.com/rotisserie/eris"
)

// readImage loads the table image and sniffs its media type.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "extract: read image %s", path)
	}
	return data, http.DetectContentType(data), nil
}
