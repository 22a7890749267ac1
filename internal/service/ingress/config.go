package ingress

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// vhostTemplate is the per-site nginx server block. The root path uses the
// container-side serve root, not the host path: BaseDir/html on the host is
// mounted at ServeRoot inside the proxy container.
var vhostTemplate = template.Must(template.New("vhost").Parse(`server {
    listen {{.Port}};
    server_name localhost;

    root {{.ServeRoot}}/{{.ID}};
    index index.html index.htm;

    location / {
        try_files $uri $uri/ /index.html;
    }

    gzip on;
    gzip_types text/plain text/css application/json application/javascript text/xml application/xml text/javascript;

    location ~* \.(jpg|jpeg|png|gif|ico|css|js|svg|woff|woff2|ttf|eot)$ {
        expires 1y;
        add_header Cache-Control "public, immutable";
    }
}
`))

type vhostParams struct {
	ID        string
	Port      int
	ServeRoot string
}

// WriteSiteConf renders the vhost for one deployment into
// <confDir>/<id>.conf, creating parent directories as needed, and returns
// the written path. Rendering is purely textual; nginx validates the result
// when it reloads.
func WriteSiteConf(confDir, serveRoot, id string, port int) (string, error) {
	var buf bytes.Buffer
	if err := vhostTemplate.Execute(&buf, vhostParams{ID: id, Port: port, ServeRoot: serveRoot}); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", ErrConfigWrite, id, err)
	}
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrConfigWrite, confDir, err)
	}
	confFile := filepath.Join(confDir, id+".conf")
	if err := os.WriteFile(confFile, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrConfigWrite, confFile, err)
	}
	return confFile, nil
}

// RemoveSiteConf deletes a generated vhost file if it exists.
func RemoveSiteConf(confFile string) error {
	if confFile == "" {
		return nil
	}
	if err := os.Remove(confFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vhost %s: %w", confFile, err)
	}
	return nil
}
