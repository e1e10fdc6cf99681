// Package plugin connects a BrowsyContext to an agent host.
//
// A host exposes HostAPI. Register installs everything the bridge offers on
// it: a pre-tool hook that redirects built-in browser tools to browsy, a
// bootstrap hook that adds the browsy tools to every agent, a service that
// owns the server lifecycle, gateway methods and text commands.
//
// Registry is an in-process HostAPI used by the standalone bridge.
package plugin
