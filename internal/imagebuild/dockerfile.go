// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"stackctl/pkg/stackfile"
)

// manifestTarget is where the dependency manifest is copied before install.
const manifestTarget = "/tmp/requirements.txt"

// envEscaper applies the escapes a double-quoted Dockerfile ENV value knows.
// A bare $ would be substituted by the builder.
var envEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

// GenerateDockerfile renders the Dockerfile for a recipe. manifest is the
// dependency manifest path relative to the build context, in slash form, or
// empty when the recipe installs no packages.
func GenerateDockerfile(recipe *stackfile.BuildRecipe, manifest string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", recipe.BaseImage)

	if len(recipe.SystemPackages) > 0 {
		sb.WriteString("RUN apt-get update \\\n")
		fmt.Fprintf(&sb, "    && apt-get install -y --no-install-recommends %s \\\n", strings.Join(recipe.SystemPackages, " "))
		sb.WriteString("    && rm -rf /var/lib/apt/lists/*\n\n")
	}

	if manifest != "" {
		fmt.Fprintf(&sb, "COPY %s %s\n", manifest, manifestTarget)
		fmt.Fprintf(&sb, "RUN pip install --no-cache-dir -r %s\n\n", manifestTarget)
	}

	workDir := recipe.WorkDir
	if workDir == "" {
		workDir = stackfile.DefaultBuildWorkDir
	}
	fmt.Fprintf(&sb, "COPY . %s\n", path.Clean(workDir))

	for _, key := range slices.Sorted(maps.Keys(recipe.Env)) {
		fmt.Fprintf(&sb, "ENV %s=%s\n", key, quoteEnvValue(recipe.Env[key]))
	}

	fmt.Fprintf(&sb, "WORKDIR %s\n", path.Clean(workDir))

	if len(recipe.Entrypoint) > 0 {
		// Exec form is a JSON array.
		cmd, _ := json.Marshal([]string(recipe.Entrypoint))
		fmt.Fprintf(&sb, "CMD %s\n", cmd)
	}

	return sb.String()
}

func quoteEnvValue(v string) string {
	return `"` + envEscaper.Replace(v) + `"`
}
