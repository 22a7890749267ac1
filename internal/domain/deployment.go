package domain

// Deployment is the persisted record for one live static site. Its JSON
// shape is the on-disk contract under deployments/<id>.json and must not
// change without migrating existing records.
type Deployment struct {
	ProjectID  string `json:"project_id"`
	Port       int    `json:"port"`
	URL        string `json:"url"`
	HTMLDir    string `json:"html_dir"`
	ConfFile   string `json:"conf_file"`
	SourceDir  string `json:"source_dir"`
	DeployedAt string `json:"deployed_at"`
}
