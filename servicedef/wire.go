package servicedef

// Request and response headers used by the export API.
const (
	HeaderAccept          = "Accept"
	HeaderContentType     = "Content-Type"
	HeaderPrefer          = "Prefer"
	HeaderProvenance      = "X-Provenance"
	HeaderRange           = "Range"
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderContentLocation = "Content-Location"
	HeaderContentRange    = "Content-Range"
	HeaderContentEncoding = "Content-Encoding"
	HeaderLastModified    = "Last-Modified"
	HeaderExpires         = "Expires"
	HeaderProgress        = "X-Progress"
)

// Media types.
const (
	FHIRJSON = "application/fhir+json"
	JSON     = "application/json"
	NDJSON   = "application/ndjson"
)

// PreferAsync asks the server to process a request asynchronously.
const PreferAsync = "respond-async"

// GzipEncoding is the only content coding the harness asks for.
const GzipEncoding = "gzip"

// Extension URLs carried by every manifest output entry.
const (
	ChecksumExtensionURL   = "https://dpc.cms.gov/checksum"
	FileLengthExtensionURL = "https://dpc.cms.gov/file_length"
)

// Identifier systems.
const (
	MBISystem = "http://hl7.org/fhir/sid/us-mbi"
	NPISystem = "http://hl7.org/fhir/sid/us-npi"
)

// Resource types produced by a group export.
const (
	TypePatient              = "Patient"
	TypeCoverage             = "Coverage"
	TypeExplanationOfBenefit = "ExplanationOfBenefit"
	TypeOperationOutcome     = "OperationOutcome"
)

// ChecksumPrefix precedes the hex digest in a checksum extension value.
const ChecksumPrefix = "sha256:"
