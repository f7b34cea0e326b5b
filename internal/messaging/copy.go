package messaging

// Customer-facing copy. All outbound text is Spanish.
const (
	FirstPhotoMessage = "📸 ¡Empecemos! Envíame una foto de tu cabello *desde la raíz*, con buena luz natural y sin filtros."

	SecondPhotoMessage = "¡Perfecto! 🙌 Ahora envíame una segunda foto de tus *puntas* para completar el diagnóstico."

	OfferFullAnalysisMessage = "Ya tengo tus dos fotos 🌸. ¿Deseas recibir tu *análisis capilar completo* con recomendaciones personalizadas? Tiene un costo de $5.000 COP."

	ConfirmDiagnosticMessage = "¿Estás seguro de que deseas iniciar el diagnóstico capilar?"

	AppointmentMessage = "💇🏻‍♀️ Para agendar tu cita con nuestra profesional, comunícate con nosotros por este medio o al contacto que te comparto a continuación."

	ProductsMessage = "🧴 Conoce nuestros productos para el cuidado capilar en https://diagnosticosclaudiamoreno.com/ o pregúntanos por el más adecuado para tu cabello."

	FarewellMessage = "¡Gracias por escribirnos! 💖 Cuando quieras volver, escribe *Hola* y con gusto te atenderemos."

	DefaultMessage = "🤖 No estoy seguro de haber entendido. Puedes escribir *'menú'* para ver opciones disponibles o preguntar sobre nuestros servicios."

	SendImageSeparatelyMessage = "Por favor, envía la imagen como un mensaje aparte para que pueda procesarla."

	InvalidSelectionMessage = "Lo siento, no entendí tu selección. Elige una opción válida."

	ImageErrorMessage = "😔 Tuvimos un problema al recibir tu imagen. Por favor, inténtalo de nuevo."

	ExtraImageMessage = "Ya recibí tus dos fotos 😊. Si quieres hacer un nuevo diagnóstico, escribe *Diagnóstico*."

	PhotosRequiredMessage = "Primero necesito tus dos fotos para preparar el análisis 📸. Escribe *Diagnóstico* para comenzar."

	NoThanksMessage = "¡Gracias por tu consulta 😊!, ¿En qué más puedo ayudarte?"

	HelpPrompt = "¿Necesitas ayuda adicional?"

	MoreOptionsPrompt = "Te puede interesar:"

	MenuPrompt = "Selecciona una opción:"

	MenuButtonText = "Menú"

	PaymentApprovedMessage = "✅ ¡Pago exitoso! Gracias por tu compra. Estamos preparando tu análisis estético..."

	PaymentPendingMessage = "⏳ Tu pago está en proceso. Te avisaremos cuando se confirme. ¡Gracias por tu paciencia! 😊"

	PaymentRejectedMessage = "❌ Tu pago no fue aprobado. Puedes intentarlo de nuevo escribiendo *Diagnóstico* o contactar soporte."

	PaymentLinkFailedMessage = "No se pudo generar el enlace de pago. Inténtalo de nuevo más tarde."

	DownloadFailedMessage = "No se pudieron descargar las imágenes para el análisis."

	AnalysisFailedMessage = "Ocurrió un error al procesar el análisis completo. Por favor, inténtalo de nuevo más tarde."

	NoStoredAnalysisMessage = "No tengo un análisis pendiente para entregar en este momento. Si necesitas un nuevo diagnóstico, escribe 'Diagnóstico'."

	GenericErrorMessage = "Ocurrió un error al procesar tu solicitud."

	AnalysisReadyTemplateName = "payment_analysis_ready"

	AnalysisReadyTemplateText = "Tu análisis estético está listo 🌸 ¿Deseas recibirlo ahora?"
)

// Template sources rendered through templates.Set.
const (
	WelcomeTemplate = "welcome"

	PaymentLinkTemplate = "payment_link"
)

// TemplateSources maps every named message template to its text.
var TemplateSources = map[string]string{
	WelcomeTemplate: "¡Hola {{.Name}}! 👋 Bienvenid@ al centro de diagnóstico capilar de Claudia Moreno. " +
		"Estoy aquí para ayudarte a conocer tu cabello. ¿En qué te puedo ayudar hoy?",
	PaymentLinkTemplate: "Aquí tienes el enlace para completar tu pago de forma segura: {{.Link}}. " +
		"Una vez confirmado, procederemos con tu diagnóstico completo 😊. " +
		"Si el enlace ha vencido, escribe \"Diagnóstico\" para iniciar un nuevo proceso. ¡Estamos aquí para ayudarte!",
}
