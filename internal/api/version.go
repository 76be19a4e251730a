package api

// EngineVersion identifies the resolution engine build. Bump on any change
// that alters derived outcomes, so settled rounds stay attributable.
const EngineVersion = "1.0.0"
