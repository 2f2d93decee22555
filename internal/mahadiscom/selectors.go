// Package mahadiscom drives the MSEDCL web self-service portal: CAPTCHA login and bill download.
package mahadiscom

import "github.com/jonathan/bill-agent/internal/browser"

// DefaultLoginURL is the portal entry page.
const DefaultLoginURL = "https://wss.mahadiscom.in/wss/wss"

// Login page.
var (
	LanguageMenu   = browser.ID("topnav_hreflanguage")
	EnglishOption  = browser.XPath("//a[text()='English']")
	LoginLink      = browser.LinkText("Login")
	UsernameInput  = browser.ID("loginId")
	PasswordInput  = browser.ID("password")
	CaptchaImage   = browser.ID("divCaptcha")
	CaptchaInput   = browser.ID("txtInput")
	LoginButton    = browser.ID("loginButton")
	CaptchaRefresh = browser.ID("btnCaptchaRefLogin")
)

// Bill pages.
var (
	ViewBillButton     = browser.ID("grdCustList_ctl02_viewHTMLBill")
	ConsumerNumberCell = browser.XPath("//td[@class='tdLabel' and contains(text(), 'Consumer No.')]/following-sibling::td")
	ConsumerNameCell   = browser.XPath("//td[@class='tdLabel' and contains(text(), 'Consumer Name')]/following-sibling::td")
	PrintableVersion   = browser.XPath("//a[contains(., 'View Printable Version')]")
	PrintDownload      = browser.XPath("//button[contains(., 'Print / Download')]")
)
