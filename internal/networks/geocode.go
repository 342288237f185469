// Package networks renders map views of facilities tied together by a shared
// licensee, address or phone number.
package networks

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

// Point is a latitude/longitude pair
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Map centre and fallback location
var (
	CaliforniaCenter = Point{37.5, -119.5}
	LosAngeles       = Point{34.0522, -118.2437}
)

// cityCentroids are approximate centres of the largest California cities
var cityCentroids = map[string]Point{
	"LOS ANGELES": {34.0522, -118.2437}, "SAN DIEGO": {32.7157, -117.1611},
	"SAN JOSE": {37.3382, -121.8863}, "SAN FRANCISCO": {37.7749, -122.4194},
	"FRESNO": {36.7378, -119.7871}, "SACRAMENTO": {38.5816, -121.4944},
	"LONG BEACH": {33.7701, -118.1937}, "OAKLAND": {37.8044, -122.2712},
	"BAKERSFIELD": {35.3733, -119.0187}, "ANAHEIM": {33.8366, -117.9143},
	"SANTA ANA": {33.7455, -117.8677}, "RIVERSIDE": {33.9533, -117.3962},
	"STOCKTON": {37.9577, -121.2908}, "IRVINE": {33.6846, -117.8265},
	"CHULA VISTA": {32.6401, -117.0842}, "FREMONT": {37.5485, -121.9886},
	"SAN BERNARDINO": {34.1083, -117.2898}, "MODESTO": {37.6391, -120.9969},
	"FONTANA": {34.0922, -117.4350}, "MORENO VALLEY": {33.9425, -117.2297},
	"GLENDALE": {34.1425, -118.2551}, "HUNTINGTON BEACH": {33.6595, -117.9988},
	"SANTA CLARITA": {34.3917, -118.5426}, "GARDEN GROVE": {33.7739, -117.9414},
	"OCEANSIDE": {33.1959, -117.3795}, "RANCHO CUCAMONGA": {34.1064, -117.5931},
	"ONTARIO": {34.0633, -117.6509}, "SANTA ROSA": {38.4405, -122.7144},
	"ELK GROVE": {38.4088, -121.3716}, "CORONA": {33.8753, -117.5664},
	"LANCASTER": {34.6868, -118.1542}, "PALMDALE": {34.5794, -118.1165},
	"SALINAS": {36.6777, -121.6555}, "POMONA": {34.0551, -117.7500},
	"HAYWARD": {37.6688, -122.0808}, "ESCONDIDO": {33.1192, -117.0864},
	"SUNNYVALE": {37.3688, -122.0363}, "TORRANCE": {33.8358, -118.3406},
	"PASADENA": {34.1478, -118.1445}, "ORANGE": {33.7879, -117.8531},
	"FULLERTON": {33.8703, -117.9242}, "THOUSAND OAKS": {34.1706, -118.8376},
	"ROSEVILLE": {38.7521, -121.2880}, "CONCORD": {37.9780, -122.0311},
	"SIMI VALLEY": {34.2694, -118.7815}, "SANTA CLARA": {37.3541, -121.9552},
	"VICTORVILLE": {34.5362, -117.2928}, "VALLEJO": {38.1041, -122.2566},
	"BERKELEY": {37.8716, -122.2727}, "EL MONTE": {34.0686, -118.0276},
	"DOWNEY": {33.9401, -118.1332}, "COSTA MESA": {33.6412, -117.9187},
	"INGLEWOOD": {33.9617, -118.3531}, "CARLSBAD": {33.1581, -117.3506},
	"FAIRFIELD": {38.2494, -122.0400}, "VENTURA": {34.2746, -119.2290},
	"TEMECULA": {33.4936, -117.1484}, "ANTIOCH": {38.0049, -121.8058},
	"MURRIETA": {33.5539, -117.2139}, "RICHMOND": {37.9358, -122.3478},
	"NORWALK": {33.9022, -118.0817}, "DALY CITY": {37.6879, -122.4702},
	"BURBANK": {34.1808, -118.3090}, "EL CAJON": {32.7948, -116.9625},
	"SOUTH GATE": {33.9547, -118.2120}, "COMPTON": {33.8958, -118.2201},
	"VISTA": {33.2000, -117.2425}, "CARSON": {33.8314, -118.2610},
	"HESPERIA": {34.4264, -117.3009}, "REDDING": {40.5865, -122.3917},
	"WESTMINSTER": {33.7514, -117.9939}, "CHICO": {39.7285, -121.8375},
	"NEWPORT BEACH": {33.6189, -117.9289}, "SAN LEANDRO": {37.7249, -122.1561},
	"SAN MARCOS": {33.1434, -117.1661}, "WHITTIER": {33.9792, -118.0328},
	"HAWTHORNE": {33.9164, -118.3526}, "CITRUS HEIGHTS": {38.7071, -121.2810},
	"ALHAMBRA": {34.0953, -118.1270}, "MENIFEE": {33.6972, -117.1851},
	"HEMET": {33.7476, -116.9719}, "LAKEWOOD": {33.8536, -118.1340},
	"MERCED": {37.3022, -120.4830}, "CHINO": {34.0122, -117.6889},
	"INDIO": {33.7206, -116.2156}, "REDWOOD CITY": {37.4852, -122.2364},
	"LAKE FOREST": {33.6469, -117.6891}, "NAPA": {38.2975, -122.2869},
	"TUSTIN": {33.7458, -117.8261}, "BELLFLOWER": {33.8817, -118.1170},
	"MOUNTAIN VIEW": {37.3861, -122.0839}, "CHINO HILLS": {33.9898, -117.7326},
	"BALDWIN PARK": {34.0854, -117.9609}, "ALAMEDA": {37.7652, -122.2416},
	"UPLAND": {34.0975, -117.6484}, "SAN RAMON": {37.7799, -121.9780},
	"FOLSOM": {38.6780, -121.1761}, "PLEASANTON": {37.6624, -121.8747},
	"LYNWOOD": {33.9303, -118.2115}, "ROSEMEAD": {34.0806, -118.0728},
}

// CityPoint looks up a city centroid
func CityPoint(city string) (Point, bool) {
	p, ok := cityCentroids[strings.ToUpper(strings.TrimSpace(city))]
	return p, ok
}

// Gazetteer maps five-digit ZIP codes (ZCTAs) to their interior points
type Gazetteer map[string]Point

// Lookup returns the point of a ZIP code
func (g Gazetteer) Lookup(zip string) (Point, bool) {
	p, ok := g[zip]
	return p, ok
}

// ReadGazetteer parses a Census ZCTA gazetteer file: tab separated with
// GEOID, INTPTLAT and INTPTLONG columns.
func ReadGazetteer(r io.Reader) (Gazetteer, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read gazetteer header: %w", err)
	}
	geoid, lat, lng := -1, -1, -1
	for i, h := range header {
		switch strings.ToUpper(strings.TrimSpace(h)) {
		case "GEOID":
			geoid = i
		case "INTPTLAT":
			lat = i
		case "INTPTLONG":
			lng = i
		}
	}
	if geoid < 0 || lat < 0 || lng < 0 {
		return nil, fmt.Errorf("gazetteer header must contain GEOID, INTPTLAT and INTPTLONG")
	}

	g := make(Gazetteer)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) <= geoid || len(row) <= lat || len(row) <= lng {
			continue
		}
		la, err1 := strconv.ParseFloat(strings.TrimSpace(row[lat]), 64)
		lo, err2 := strconv.ParseFloat(strings.TrimSpace(row[lng]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		g[strings.TrimSpace(row[geoid])] = Point{la, lo}
	}
	return g, nil
}

// LoadGazetteer reads a gazetteer file. An empty path yields an empty gazetteer.
func LoadGazetteer(path string) (Gazetteer, error) {
	if path == "" {
		return Gazetteer{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGazetteer(f)
}

// Jitter spreads markers that share a location
type Jitter struct {
	rng *rand.Rand
}

// NewJitter creates a seeded jitter source so maps are reproducible
func NewJitter(seed uint64) *Jitter {
	return &Jitter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Offset moves p by up to amount degrees on each axis
func (j *Jitter) Offset(p Point, amount float64) Point {
	return Point{
		Lat: p.Lat + (j.rng.Float64()*2-1)*amount,
		Lng: p.Lng + (j.rng.Float64()*2-1)*amount,
	}
}
