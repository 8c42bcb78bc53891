package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/cidadao-ai/citizen-intake/internal/catalog"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

const (
	replyRetry         = "Desculpe, ocorreu um erro interno. Por favor, tente novamente."
	replyWelcome       = "Olá! 👋 Bem-vindo ao sistema de atendimento da Prefeitura!\n\nPara abrir um chamado, preciso primeiro cadastrá-lo em nosso sistema.\n\nPor favor, me informe seu **nome completo**:"
	replyAskName       = "Por favor, me informe seu **nome completo**:"
	replyInvalidCPF    = "CPF inválido. Por favor, digite apenas os 11 números do seu CPF:"
	replyAskAddress    = "Ótimo! Agora me informe seu **endereço completo** (rua, número, bairro):"
	replyAskEmail      = "Agora me informe seu **e-mail** (opcional - pode digitar \"não tenho\"):"
	replyAskIssue      = "Por favor, descreva o problema ou solicitação que gostaria de registrar:"
	replyConfirmed     = "✅ Perfeito! Categoria confirmada.\n\nAgora preciso do **endereço onde ocorre o problema** (rua, número, bairro):"
	replyAskYesNo      = "Por favor, responda \"sim\" ou \"não\" para confirmar a categoria:"
	replyUnclassified  = "Não consegui identificar automaticamente a categoria do seu chamado."
	replyRejected      = "Entendi! Vamos especificar melhor."
	replyUnknownSector = "Não reconheci o setor informado."
	replyAskLocation   = "Por favor, informe o **endereço onde ocorre o problema** (rua, número, bairro):"
	replyNewTicket     = "Ótimo! Vamos criar um novo chamado.\n\nPor favor, descreva o problema ou solicitação:"
	replyTicketMissing = "❌ Chamado não encontrado.\n\nVerifique se o protocolo está correto ou se você tem algum chamado em andamento.\n\nPara criar um novo chamado, basta me enviar uma mensagem descrevendo seu problema! 😊"
)

func replyGreeting(name string) string {
	return fmt.Sprintf("Olá %s! 👋\n\nVejo que você já está cadastrado em nosso sistema.\n\nComo posso ajudá-lo hoje? %s", name, replyAskIssue)
}

func replyAskCPF(name string) string {
	return fmt.Sprintf("Perfeito, %s! 😊\n\nAgora preciso do seu **CPF** (apenas os números):", name)
}

func replyRegistered(name string) string {
	return fmt.Sprintf("✅ Cadastro realizado com sucesso!\n\nOlá %s, como posso ajudá-lo hoje?\n\n%s", name, replyAskIssue)
}

func replyRegistrationFailed(message string) string {
	return "❌ Erro ao cadastrar: " + message
}

func replyTicketFailed(message string) string {
	return "❌ Erro ao criar chamado: " + message
}

func replySuggestion(categoryName, teamName string) string {
	return fmt.Sprintf("Entendi! Analisando sua solicitação...\n\n🔍 **Categoria sugerida**: %s\n🏢 **Setor responsável**: %s\n\nEsta categorização está correta? (Digite \"sim\" ou \"não\")", categoryName, teamName)
}

func replySelected(categoryName string) string {
	return fmt.Sprintf("✅ Perfeito! Categoria **%s** selecionada.\n\nAgora preciso do **endereço onde ocorre o problema** (rua, número, bairro):", categoryName)
}

// categoryMenu lists the catalog in order with a few sample keywords each.
func categoryMenu(intro string, cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\nPor favor, me informe qual setor é responsável pelo seu problema:\n")
	for _, c := range cat.All() {
		samples := c.Keywords
		if len(samples) > 3 {
			samples = samples[:3]
		}
		fmt.Fprintf(&b, "- **%s** (%s)\n", c.DisplayName(), strings.Join(samples, ", "))
	}
	b.WriteString("\nDigite o nome do setor:")
	return b.String()
}

func replyTicketCreated(t *domain.Ticket) string {
	return fmt.Sprintf("🎉 **Chamado criado com sucesso!**\n\n📋 **Protocolo**: %s\n📝 **Descrição**: %s\n🏢 **Setor**: %s\n📍 **Local**: %s\n\n⏰ **Previsão de atendimento**: %s\n\nVocê pode consultar o status deste chamado a qualquer momento digitando: **status %s**\n\nPrecisa de mais alguma coisa? 😊",
		t.Protocol, t.Title, t.TeamName, t.Address, Forecast(slaHours(t)), t.Protocol)
}

func replyAcknowledge(protocol string) string {
	if protocol == "" {
		protocol = "N/A"
	}
	return fmt.Sprintf("Seu chamado %s foi registrado com sucesso! 🎉\n\nSe precisar de mais alguma coisa ou quiser criar outro chamado, é só me avisar! 😊", protocol)
}

var statusLabels = map[domain.TicketStatus]string{
	domain.TicketStatusOpen:       "🔴 **Status**: Aberto",
	domain.TicketStatusInProgress: "🟡 **Status**: Em Andamento",
	domain.TicketStatusResolved:   "🟢 **Status**: Resolvido",
	domain.TicketStatusCancelled:  "⚫ **Status**: Cancelado",
}

const dateLayout = "02/01/2006 15:04"

func replyStatus(t *domain.Ticket) string {
	label, ok := statusLabels[t.Status]
	if !ok {
		label = "❓ **Status**: " + string(t.Status)
	}
	team := t.TeamName
	if team == "" {
		team = "A definir"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **Status do Chamado**\n\n🔖 **Protocolo**: %s\n📝 **Descrição**: %s\n%s\n🏢 **Setor**: %s\n📅 **Data**: %s\n",
		t.Protocol, t.Title, label, team, t.CreatedAt.Format(dateLayout))
	if t.ResolvedAt != nil {
		fmt.Fprintf(&b, "\n✅ **Resolvido em**: %s\n", t.ResolvedAt.Format(dateLayout))
	}
	b.WriteString("\nPara mais informações, entre em contato com nossa equipe! 😊")
	return b.String()
}

// Forecast renders an SLA as the citizen-facing expected service time.
func Forecast(hours int) string {
	switch {
	case hours <= 24:
		return fmt.Sprintf("%dh úteis", hours)
	case hours <= 72:
		return fmt.Sprintf("%d dias úteis", hours/24)
	case hours < 168:
		return "1 semana(s)"
	default:
		return fmt.Sprintf("%d semana(s)", hours/168)
	}
}

func slaHours(t *domain.Ticket) int {
	if t.SLADeadline == nil {
		return domain.DefaultSLAHours
	}
	return int(t.SLADeadline.Sub(t.CreatedAt) / time.Hour)
}
