// Package images inspects uploaded photo metadata.
package images

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"

	"mangrovewatch/models"
)

// ExtractLocation pulls the GPS fix out of a photo's EXIF block. Returns
// false when the photo carries no usable fix; phone cameras routinely strip
// it.
func ExtractLocation(data []byte) (models.Location, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Location{}, false
	}

	lat, lng, err := x.LatLong()
	if err != nil {
		return models.Location{}, false
	}
	if lat == 0 && lng == 0 {
		// A zero-zero fix is the null island placeholder, not a real location.
		return models.Location{}, false
	}

	return models.Location{
		Latitude:  lat,
		Longitude: lng,
		Source:    models.LocationReal,
	}, true
}
