// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a catalog entry.
type Id int

const (
	StackfileNotFoundId Id = iota + 1
	StackfileInvalidId
	ContainerEngineNotFoundId
	DependencyCycleId
	DatabaseNotReadyId
	SecretUnavailableId
	ImageBuildFailedId
	ConfigLoadFailedId
	PortAllocatedId
)

type (
	// MarkdownMsg is the Markdown body of a catalog entry.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is a catalog entry: a Markdown troubleshooting guide plus links.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id { return i.id }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the entry with glamour. stylePath is a glamour style name
// such as "dark", "light" or "notty".
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	stackfileNotFoundIssue = &Issue{
		id: StackfileNotFoundId,
		mdMsg: `
# No stack file found!

stackctl looks for ` + "`stack.yaml`" + ` in the current directory unless ` + "`--file`" + ` or the
` + "`stack_file`" + ` config key says otherwise.

## Things you can try:
- Create the default stack (application + PostgreSQL):
~~~
$ stackctl init
~~~
- Point at an existing file:
~~~
$ stackctl up --file deploy/stack.toml
~~~`,
	}

	stackfileInvalidIssue = &Issue{
		id: StackfileInvalidId,
		mdMsg: `
# The stack file is invalid!

Every service needs an ` + "`image`" + ` or a ` + "`build`" + ` section, every ` + "`depends_on`" + ` entry must name
a declared service, and named volumes and secrets must be declared at the top level.

## Things you can try:
- Run ` + "`stackctl plan`" + ` to see how the file is interpreted
- Check the indentation of YAML files
- Declare named volumes under the top-level ` + "`volumes:`" + ` key`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine available!

stackctl drives Docker or Podman through their CLIs and could not reach either.

## Things you can try:
- Install Docker or Podman and make sure the binary is on your PATH
- Start the daemon (` + "`systemctl start docker`" + `) or the Podman machine
- Select the engine explicitly:
~~~cue
container_engine: "podman"
~~~`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

Services are started in ` + "`depends_on`" + ` order, so the dependency graph must not contain cycles.

## Things you can try:
- Remove one of the ` + "`depends_on`" + ` edges listed in the error
- Split the service that both provides and consumes a dependency`,
	}

	databaseNotReadyIssue = &Issue{
		id: DatabaseNotReadyId,
		mdMsg: `
# A dependency never became ready!

stackctl waits for services with a readiness probe before starting the services that
depend on them. The probe kept failing until the timeout expired.

## Things you can try:
- Inspect the dependency's logs:
~~~
$ docker logs <project>-db
~~~
- Check that ` + "`POSTGRES_USER`" + `, ` + "`POSTGRES_PASSWORD`" + ` and ` + "`POSTGRES_DB`" + ` match what the probe uses
- A volume initialised with different credentials keeps the old ones; reset it with:
~~~
$ stackctl down --volumes
~~~
- Raise the timeout with ` + "`--timeout 2m`" + ``,
	}

	secretUnavailableIssue = &Issue{
		id: SecretUnavailableId,
		mdMsg: `
# A secret could not be resolved!

Secrets are read from the host when a service starts; they are never copied into images.

## Things you can try:
- For file secrets, check that the file exists (for example ` + "`~/.aws/credentials`" + `)
- For environment secrets, export the variable or add it to ` + "`.env`" + ` next to the stack file
- Mark the reference ` + "`optional: true`" + ` if the service can run without it`,
	}

	imageBuildFailedIssue = &Issue{
		id: ImageBuildFailedId,
		mdMsg: `
# The image build failed!

## Things you can try:
- Make sure the dependency manifest (` + "`requirements.txt`" + `) exists in the build context
- Check that the system packages exist for the chosen base image
- Rebuild without cache:
~~~
$ stackctl build --no-cache
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load the stackctl configuration!

## Things you can try:
- Show the effective configuration and its path:
~~~
$ stackctl config show
~~~
- Regenerate the defaults with ` + "`stackctl config init`" + `
- Override single keys with ` + "`STACKCTL_*`" + ` environment variables`,
	}

	portAllocatedIssue = &Issue{
		id: PortAllocatedId,
		mdMsg: `
# A host port is already in use!

Published ports (such as ` + "`5432:5432`" + `) must be free on the host.

## Things you can try:
- Stop the local service that owns the port
- Publish the container port on another host port, e.g. ` + "`15432:5432`" + `, and set ` + "`DATABASE_PORT`" + ` accordingly`,
	}

	issues = map[Id]*Issue{
		stackfileNotFoundIssue.Id():       stackfileNotFoundIssue,
		stackfileInvalidIssue.Id():        stackfileInvalidIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		dependencyCycleIssue.Id():         dependencyCycleIssue,
		databaseNotReadyIssue.Id():        databaseNotReadyIssue,
		secretUnavailableIssue.Id():       secretUnavailableIssue,
		imageBuildFailedIssue.Id():        imageBuildFailedIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		portAllocatedIssue.Id():           portAllocatedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id - b.id) })
	return out
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
