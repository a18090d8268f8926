package constants

import "strings"

// FieldKind selects the validation applied to a metadata value.
type FieldKind string

const (
	KindText       FieldKind = "text"
	KindIdentifier FieldKind = "identifier"
	KindLatitude   FieldKind = "latitude"
	KindLongitude  FieldKind = "longitude"
	KindCoordinate FieldKind = "coordinate"
	KindElevation  FieldKind = "elevation"
	KindDate       FieldKind = "date"
)

// MetadataField describes one well metadata field.
type MetadataField struct {
	Name        string
	Kind        FieldKind
	Description string
}

// Metadata field names.
const (
	FieldUWI                  = "uwi"
	FieldOperator             = "operator"
	FieldVendor               = "vendor"
	FieldContactInfo          = "contact_info"
	FieldCounty               = "county"
	FieldMethod               = "method"
	FieldNorthRef             = "north_ref"
	FieldSHLLat               = "shl_lat"
	FieldSHLLon               = "shl_lon"
	FieldSHLX                 = "shl_x"
	FieldSHLY                 = "shl_y"
	FieldBHLLat               = "bhl_lat"
	FieldBHLLon               = "bhl_lon"
	FieldBHLX                 = "bhl_x"
	FieldBHLY                 = "bhl_y"
	FieldLeaseLocation        = "lease_location"
	FieldJobNumber            = "job_number"
	FieldMapZone              = "map_zone"
	FieldMapSystem            = "map_system"
	FieldGeoDatum             = "geo_datum"
	FieldSystemDatum          = "system_datum"
	FieldGroundLevelElevation = "ground_level_elevation"
	FieldDatumElevation       = "datum_elevation"
	FieldDateCreated          = "date_created"
)

// Survey point column names, in export order. Depths and displacements are in
// the document's depth unit (usually feet), angles in degrees.
const (
	PointMD  = "md"
	PointINC = "inc"
	PointAZI = "azi"
	PointTVD = "tvd"
	PointNS  = "ns"
	PointEW  = "ew"
)

var PointColumns = []string{PointMD, PointINC, PointAZI, PointTVD, PointNS, PointEW}

var metadataFields = []MetadataField{
	{FieldUWI, KindIdentifier, "Unique Well Identifier / API number"},
	{FieldOperator, KindText, "Operating company name"},
	{FieldVendor, KindText, "Trajectory service vendor"},
	{FieldContactInfo, KindText, "Contact information for the service company (email/phone)"},
	{FieldCounty, KindText, "County where the well is located"},
	{FieldMethod, KindText, "Survey calculation method (e.g. minimum curvature)"},
	{FieldNorthRef, KindText, "North reference (e.g. true north, grid north)"},
	{FieldSHLLat, KindLatitude, "Surface Hole Location (SHL, S/H) latitude in decimal degrees; convert degree/minute/second notation to decimal"},
	{FieldSHLLon, KindLongitude, "Surface Hole Location (SHL, S/H) longitude in decimal degrees; convert degree/minute/second notation to decimal"},
	{FieldSHLX, KindCoordinate, "SHL X coordinate (local grid)"},
	{FieldSHLY, KindCoordinate, "SHL Y coordinate (local grid)"},
	{FieldBHLLat, KindLatitude, "Bottom Hole Location (BHL) latitude in decimal degrees (WGS84)"},
	{FieldBHLLon, KindLongitude, "Bottom Hole Location (BHL) longitude in decimal degrees (WGS84)"},
	{FieldBHLX, KindCoordinate, "BHL X coordinate (local grid)"},
	{FieldBHLY, KindCoordinate, "BHL Y coordinate (local grid)"},
	{FieldLeaseLocation, KindText, "Lease or site location name"},
	{FieldJobNumber, KindText, "Job number or identifier"},
	{FieldMapZone, KindText, "Coordinate reference zone (e.g. Texas Central, Texas North)"},
	{FieldMapSystem, KindText, "Map projection or map system (e.g. State Plane, UTM)"},
	{FieldGeoDatum, KindText, "Geodetic datum / geodetic system (e.g. NAD 83)"},
	{FieldSystemDatum, KindText, "System or vertical datum (e.g. MSL, Mean Sea Level)"},
	{FieldGroundLevelElevation, KindElevation, "Ground level (GL) elevation, usually the MD reference; number only, no units"},
	{FieldDatumElevation, KindElevation, "Datum elevation, MD/TVD reference or the number after @ in MD Reference; number only, no units"},
	{FieldDateCreated, KindDate, "Date the survey or document was created"},
}

// MetadataFields returns the metadata catalogue in canonical order.
func MetadataFields() []MetadataField {
	out := make([]MetadataField, len(metadataFields))
	copy(out, metadataFields)
	return out
}

// MetadataFieldNames returns the metadata field names in canonical order.
func MetadataFieldNames() []string {
	names := make([]string, len(metadataFields))
	for i, f := range metadataFields {
		names[i] = f.Name
	}
	return names
}

// LookupField returns the catalogue entry for name.
func LookupField(name string) (MetadataField, bool) {
	for _, f := range metadataFields {
		if f.Name == name {
			return f, true
		}
	}
	return MetadataField{}, false
}

// Canonicalize maps a key produced by a model or a spreadsheet header onto a
// catalogue or point column name.
func Canonicalize(input string) (string, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(normalized)

	// synonyms map
	synonyms := map[string]string{
		"api":                 FieldUWI,
		"api_number":          FieldUWI,
		"api_no":              FieldUWI,
		"well_id":             FieldUWI,
		"operator_name":       FieldOperator,
		"company":             FieldOperator,
		"service_company":     FieldVendor,
		"lease":               FieldLeaseLocation,
		"location":            FieldLeaseLocation,
		"calc_method":         FieldMethod,
		"survey_method":       FieldMethod,
		"gl_elevation":        FieldGroundLevelElevation,
		"ground_elevation":    FieldGroundLevelElevation,
		"kb_elevation":        FieldDatumElevation,
		"measured_depth":      PointMD,
		"depth":               PointMD,
		"inclination":         PointINC,
		"incl":                PointINC,
		"azimuth":             PointAZI,
		"azm":                 PointAZI,
		"true_vertical_depth": PointTVD,
		"northing":            PointNS,
		"n_s":                 PointNS,
		"easting":             PointEW,
		"e_w":                 PointEW,
	}

	if name, ok := synonyms[normalized]; ok {
		return name, true
	}
	if _, ok := LookupField(normalized); ok {
		return normalized, true
	}
	for _, c := range PointColumns {
		if normalized == c {
			return c, true
		}
	}
	return "", false
}
