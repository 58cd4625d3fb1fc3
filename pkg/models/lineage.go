package models

// LineageMarkerEnv is stamped into the environment of every process drover
// spawns. Ancestry walks prefer this explicit marker over matching the
// orchestrator's binary name, which breaks under renaming and wrappers.
const LineageMarkerEnv = "DROVER_SESSION"
