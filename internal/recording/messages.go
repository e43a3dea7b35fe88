package recording

import "fmt"

// MessageKey identifies a user-facing text.
type MessageKey string

const (
	MsgRecordingStarted MessageKey = "recording_started"
	MsgRecordingReady   MessageKey = "recording_ready"
	MsgSaved            MessageKey = "saved"
	MsgSaveFailed       MessageKey = "save_failed"

	MsgStatusIdle       MessageKey = "status_idle"
	MsgStatusRequesting MessageKey = "status_requesting"
	MsgStatusRecording  MessageKey = "status_recording"
	MsgStatusStopping   MessageKey = "status_stopping"
	MsgStatusProcessing MessageKey = "status_processing"
	MsgStatusReady      MessageKey = "status_ready"
	MsgStatusError      MessageKey = "status_error"
)

// Catalog holds the localized messages for one locale.
type Catalog struct {
	messages map[MessageKey]string
	reasons  map[Reason]string
	unknown  string
}

var catalogs = map[string]*Catalog{
	"en": {
		messages: map[MessageKey]string{
			MsgRecordingStarted: "Recording started",
			MsgRecordingReady:   "Recording is ready to download",
			MsgSaved:            "Recording saved",
			MsgSaveFailed:       "The recording could not be saved",
			MsgStatusIdle:       "Ready to record",
			MsgStatusRequesting: "Waiting for capture permission...",
			MsgStatusRecording:  "Recording...",
			MsgStatusStopping:   "Stopping...",
			MsgStatusProcessing: "Processing video...",
			MsgStatusReady:      "Video ready to download",
			MsgStatusError:      "Recording failed",
		},
		reasons: map[Reason]string{
			ReasonPermissionDenied:         "Screen capture permission was denied. Allow access and try again.",
			ReasonNotSupported:             "Screen capture is not supported in this environment.",
			ReasonNoSourceAvailable:        "No capture sources were found.",
			ReasonUserCancelled:            "Screen capture was cancelled.",
			ReasonHardwareError:            "A hardware error prevented screen capture.",
			ReasonConstraintsUnsatisfiable: "The requested capture settings could not be satisfied.",
			ReasonRecorderFault:            "An error occurred while recording.",
		},
		unknown: "Capture error: %s",
	},
	"es": {
		messages: map[MessageKey]string{
			MsgRecordingStarted: "Grabación iniciada correctamente",
			MsgRecordingReady:   "Video generado correctamente",
			MsgSaved:            "Grabación guardada",
			MsgSaveFailed:       "No se pudo guardar la grabación",
			MsgStatusIdle:       "Listo para grabar",
			MsgStatusRequesting: "Esperando permiso de captura...",
			MsgStatusRecording:  "Grabando...",
			MsgStatusStopping:   "Deteniendo...",
			MsgStatusProcessing: "Procesando video...",
			MsgStatusReady:      "Video listo para descargar",
			MsgStatusError:      "Error en la grabación",
		},
		reasons: map[Reason]string{
			ReasonPermissionDenied:         "Permisos de captura de pantalla denegados. Por favor, permite el acceso y vuelve a intentar.",
			ReasonNotSupported:             "La captura de pantalla no está soportada en este entorno.",
			ReasonNoSourceAvailable:        "No se encontraron fuentes de captura disponibles.",
			ReasonUserCancelled:            "Captura de pantalla cancelada por el usuario.",
			ReasonHardwareError:            "Error de hardware al acceder a la captura de pantalla.",
			ReasonConstraintsUnsatisfiable: "No se pudo satisfacer las configuraciones de captura solicitadas.",
			ReasonRecorderFault:            "Error durante la grabación.",
		},
		unknown: "Error de captura: %s",
	},
}

// LookupCatalog returns the catalog for locale, falling back to English.
func LookupCatalog(locale string) *Catalog {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return catalogs["en"]
}

// Text returns the message for key.
func (c *Catalog) Text(key MessageKey) string {
	if s, ok := c.messages[key]; ok {
		return s
	}
	return string(key)
}

// Failure returns the human-readable text for a classified failure.
func (c *Catalog) Failure(ce *CaptureError) string {
	if s, ok := c.reasons[ce.Reason]; ok {
		return s
	}
	msg := "unknown"
	if ce.Err != nil {
		msg = ce.Err.Error()
	}
	return fmt.Sprintf(c.unknown, msg)
}

func (c *Catalog) status(s State) string {
	switch s {
	case StateRequesting:
		return c.Text(MsgStatusRequesting)
	case StateRecording:
		return c.Text(MsgStatusRecording)
	case StateStopping:
		return c.Text(MsgStatusStopping)
	case StateProcessing:
		return c.Text(MsgStatusProcessing)
	case StateReady:
		return c.Text(MsgStatusReady)
	case StateError:
		return c.Text(MsgStatusError)
	default:
		return c.Text(MsgStatusIdle)
	}
}
