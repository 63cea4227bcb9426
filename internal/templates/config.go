package templates

import "os"

const configTemplate = `
studio_home: ~/.clearcut-studio
assets_dir: ~/.clearcut-studio/assets
temp_dir: ~/.clearcut-studio/temp
filesystem_type: local

server_url: "http://localhost:8787"

db:
  driver: sqlite
  dsn: "file:~/.clearcut-studio/studio.db"

# s3:
#   endpoint_url: "https://nyc3.digitaloceanspaces.com"
#   access_key: ""
#   secret_key: ""
#   region_name: "nyc3"
#   bucket_name: ""
#   folder: "public"
#   vanity_url: ""

# disk:
#   token: ""
`

const envTemplate = `# Provider API keys. Any key left empty must be supplied by the client.
REMOVEBG_API_KEY=
CLIPDROP_API_KEY=
REPLICATE_API_KEY=
FAL_KEY=

# Server-side Yandex Disk OAuth token (optional).
STUDIO_DISK_TOKEN=

# OpenAI key for background prompt moderation (optional).
OPENAI_API_KEY=
`

func WriteConfig(path string) error {
	return writeFile(path, configTemplate)
}

func WriteEnv(path string) error {
	return writeFile(path, envTemplate)
}

func writeFile(path, content string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	return err
}
