package secretstore

// Config describes available secret providers.
type Config struct {
	DefaultProvider string                    `yaml:"defaultProvider,omitempty" json:"defaultProvider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty"`
}

// ProviderConfig captures provider-specific settings.
type ProviderConfig struct {
	Type           string `yaml:"type,omitempty" json:"type,omitempty"`
	Path           string `yaml:"path,omitempty" json:"path,omitempty"`
	Address        string `yaml:"address,omitempty" json:"address,omitempty"`
	Token          string `yaml:"token,omitempty" json:"token,omitempty"`
	Namespace      string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Mount          string `yaml:"mount,omitempty" json:"mount,omitempty"`
	KVVersion      int    `yaml:"kvVersion,omitempty" json:"kvVersion,omitempty"`
	Key            string `yaml:"key,omitempty" json:"key,omitempty"`
	AuthMethod     string `yaml:"authMethod,omitempty" json:"authMethod,omitempty"`
	AuthMount      string `yaml:"authMount,omitempty" json:"authMount,omitempty"`
	RoleID         string `yaml:"roleId,omitempty" json:"roleId,omitempty"`
	SecretID       string `yaml:"secretId,omitempty" json:"secretId,omitempty"`
	AWSRole        string `yaml:"awsRole,omitempty" json:"awsRole,omitempty"`
	AWSRegion      string `yaml:"awsRegion,omitempty" json:"awsRegion,omitempty"`
	AWSHeaderValue string `yaml:"awsHeaderValue,omitempty" json:"awsHeaderValue,omitempty"`
}
