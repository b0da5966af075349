package metrics

// Metric names recorded by the session engine and the gateway.
const (
	ConnectionsActive     = "connections_active"
	SessionsCreated       = "sessions_created"
	SessionsEvicted       = "sessions_evicted"
	SessionsFinished      = "sessions_finished"
	PlayersJoined         = "players_joined"
	PlayersReconnected    = "players_reconnected"
	SpectatorsJoined      = "spectators_joined"
	AnswersAccepted       = "answers_accepted"
	AnswersRejected       = "answers_rejected"
	AnswersCorrect        = "answers_correct"
	QuestionsStarted      = "questions_started"
	QuestionsRevealed     = "questions_revealed"
	AutoReveals           = "auto_reveals"
	Reactions             = "reactions"
	HostRejections        = "host_rejections"
	InvalidMessages       = "invalid_messages"
	SideEffectFailures    = "side_effect_failures"
	BridgeAnswersInjected = "bridge_answers_injected"

	SessionsActive      = "sessions_active"
	PlayersConnected    = "players_connected"
	SpectatorsConnected = "spectators_connected"

	AnswerLatencyMs    = "answer_latency_ms"
	QuestionDurationMs = "question_duration_ms"
	SessionDurationMs  = "session_duration_ms"
)

// RegisterDefaults declares the gauges and histograms used by the server so
// they are exported before their first observation.
func RegisterDefaults(r *Registry) {
	r.RegisterGauge(SessionsActive, "Sessions currently held in memory")
	r.RegisterGauge(PlayersConnected, "Players attached to a live connection")
	r.RegisterGauge(SpectatorsConnected, "Spectators attached to a live connection")

	r.RegisterHistogram(AnswerLatencyMs, "Time from question start to accepted answer in milliseconds",
		[]float64{250, 500, 1000, 2000, 5000, 10000, 20000, 30000})
	r.RegisterHistogram(QuestionDurationMs, "Time from question start to reveal in milliseconds",
		[]float64{1000, 2000, 5000, 10000, 20000, 30000, 60000})
	r.RegisterHistogram(SessionDurationMs, "Time from session creation to finish in milliseconds",
		[]float64{60000, 300000, 600000, 1800000, 3600000})

	r.Describe(ConnectionsActive, "Open websocket connections")
	r.Describe(SessionsCreated, "Sessions created")
	r.Describe(SessionsEvicted, "Sessions evicted from memory")
	r.Describe(SessionsFinished, "Sessions that reached the finished phase")
	r.Describe(PlayersJoined, "Player joins including reconnects")
	r.Describe(PlayersReconnected, "Player joins restored from a previous connection")
	r.Describe(SpectatorsJoined, "Spectator joins")
	r.Describe(AnswersAccepted, "Answers accepted")
	r.Describe(AnswersRejected, "Answers rejected for any reason")
	r.Describe(AnswersCorrect, "Accepted answers that were fully correct")
	r.Describe(QuestionsStarted, "Questions started")
	r.Describe(QuestionsRevealed, "Questions revealed")
	r.Describe(AutoReveals, "Reveals triggered because every player answered")
	r.Describe(Reactions, "Reactions broadcast")
	r.Describe(HostRejections, "Host-only commands rejected")
	r.Describe(InvalidMessages, "Inbound messages rejected by validation")
	r.Describe(SideEffectFailures, "Best-effort persistence, history or bridge calls that failed")
	r.Describe(BridgeAnswersInjected, "Answers injected through the chat bridge")
}
