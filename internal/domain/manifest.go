package domain

// Manifest is the result record the in-sandbox capture entrypoint writes
// after a successful run. All artifact paths are expressed in the
// sandbox's filesystem view and must be rewritten to host paths before
// use.
type Manifest struct {
	PcapPath       string `json:"pcap_path"`
	SSLKeyFilePath string `json:"ssl_key_file_path"`
	ContentPath    string `json:"content_path"`
	HTMLPath       string `json:"html_path"`
	ScreenshotPath string `json:"screenshot_path"`
	CurrentURL     string `json:"current_url"`
}

// ArtifactPaths holds the final host-side locations of a job's relocated
// artifacts, as handed to the success callback.
type ArtifactPaths struct {
	Pcap       string
	SSLKey     string
	Content    string
	HTML       string
	Screenshot string
	CurrentURL string
}
