// Comfyagent runs reusable workflow presets against a ComfyUI server. A preset
// names a workflow and binds command line parameters and file uploads to the
// inputs of its nodes; the runner patches the workflow, submits it, follows
// execution over the websocket and saves every output locally.
//
// The packages can be used on their own: client talks to the ComfyUI HTTP
// and websocket API, graphapi normalizes editor and API workflows into the
// canonical execution graph, catalog discovers workflows stored on the
// server, and runner ties them to the presets in a working directory.
package comfyagent
