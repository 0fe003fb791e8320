// Package artifacts embeds the default YAML configuration templates written
// by the servercmd/proxycmd "init" subcommands, the way the teacher's
// internal/artifacts embeds global/project_config.yaml.
package artifacts

import _ "embed"

//go:embed templates/server.yaml
var ServerConfig []byte

//go:embed templates/proxy.yaml
var ProxyConfig []byte
