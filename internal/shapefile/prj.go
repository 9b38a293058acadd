package shapefile

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

var authorityPattern = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)

// esriNames covers .prj files written without an AUTHORITY clause.
var esriNames = map[string]int{
	`GEOGCS["GCS_WGS_1984"`: 4326,
	`PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere"`: 3857,
}

// EPSGFromWKT extracts the EPSG code of a WKT1 coordinate system. The last
// AUTHORITY clause belongs to the outermost CRS. ok is false if no code
// can be found.
func EPSGFromWKT(wkt string) (code int, ok bool) {
	if m := authorityPattern.FindAllStringSubmatch(wkt, -1); len(m) > 0 {
		n, err := strconv.Atoi(m[len(m)-1][1])
		if err == nil && n > 0 {
			return n, true
		}
	}
	compact := strings.ReplaceAll(wkt, " ", "")
	for prefix, code := range esriNames {
		if strings.HasPrefix(compact, prefix) {
			return code, true
		}
	}
	return 0, false
}

// epsgFromPRJ reads a .prj sidecar, falling back to def when the file is
// missing or names no known code.
func epsgFromPRJ(path string, def int) (int, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	if code, ok := EPSGFromWKT(string(b)); ok {
		return code, nil
	}
	return def, nil
}
