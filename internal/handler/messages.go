package handler

// Client-facing texts. Existing clients compare some of them verbatim.
const (
	msgInternal          = "Errore interno"
	msgEndpointNotFound  = "Endpoint non trovato"
	msgQueryRequired     = "Query string richiesta"
	msgUserNotFound      = "Utente non trovato"
	msgRegisterFirst     = "Utente non trovato. Registrati prima."
	msgNameRequired      = "Nome richiesto"
	msgInvalidEmail      = "Email non valida"
	msgInvalidAge        = "Età non valida"
	msgAlreadyRegistered = "Utente già registrato"
	msgEmailTaken        = "Email già registrata"
	msgRegistered        = "Utente registrato"
	msgMissingEventArgs  = "Parametri mancanti (title, date, location)"
	msgInvalidEventArgs  = "Parametri non validi"
	msgEventAdded        = "Evento aggiunto"
	msgUIDRequired       = "UID richiesto"
	msgUIDInvalid        = "UID invalido"
	msgEventNotFound     = "Evento non trovato"
	msgNotOwner          = "Non sei il proprietario di questo evento"
	msgEventDeleted      = "Evento eliminato"
	msgTooLong           = "Parametro troppo lungo: %s"

	placeholderEmail = "no-email@example.com"
)
